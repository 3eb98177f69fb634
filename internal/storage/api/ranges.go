package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errInvalidRange = errors.New("invalid range")

// parseByteRange 解析单段 “bytes=a-b” / “bytes=a-” / “bytes=-n”，返回闭区间。
func parseByteRange(value string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes=")
	if !ok || strings.Contains(spec, ",") || size <= 0 {
		return 0, 0, errInvalidRange
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, errInvalidRange
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, errInvalidRange
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, errInvalidRange
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return 0, 0, errInvalidRange
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, nil
}

func formatContentRange(start, end, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, size)
}
