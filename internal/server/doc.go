// Package server hosts the Fiber applications that front the proxy. Each
// listener (plaintext and TLS) gets its own Fiber app built by NewApp; all of
// them share one ProxyHandler and so one response cache. The package also owns
// the shared upstream http.Client, TLS certificate loading and the listener
// group that starts and stops the apps together.
package server
