package logging

import (
	"fmt"
	"io"
	"sync"
)

// Outcome 描述一次代理请求的结果，用于控制台进度输出。
type Outcome int

const (
	OutcomeMiss Outcome = iota
	OutcomeHit
	OutcomeFailed
)

// 非 verbose 模式下每个请求输出一个字符，命中与回源用不同字符区分。
var progressMarks = map[Outcome]string{
	OutcomeMiss:   ".",
	OutcomeHit:    "+",
	OutcomeFailed: "!",
}

// Progress 把每个请求的结果写到控制台，与 JSON 结构化日志相互独立。
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewProgress 创建控制台进度输出；out 为 nil 时丢弃所有输出。
func NewProgress(out io.Writer, verbose bool) *Progress {
	if out == nil {
		out = io.Discard
	}
	return &Progress{out: out, verbose: verbose}
}

// Record 输出一次请求：verbose 时打印一行 “METHOD URI PROTOCOL [hit|miss|fail]”，
// 否则只打印一个进度字符。
func (p *Progress) Record(method, uri, protocol string, outcome Outcome) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.verbose {
		fmt.Fprintf(p.out, "%s %s %s [%s]\n", method, uri, protocol, outcome)
		return
	}
	fmt.Fprint(p.out, progressMarks[outcome])
}

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeFailed:
		return "fail"
	default:
		return "miss"
	}
}
