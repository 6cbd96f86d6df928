// Package main is the gateway command-line client.
//
// srvgate attaches to a running srvemu as a process and performs one service
// manager or PM operation per invocation. Handles named with --preload are
// fetched once and then served from the override table, the way a loader
// hands preopened handles to a program.
//
// Usage:
//
//	srvgate is-registered pm:app
//	srvgate --preload pm:app get-service pm:app
//	srvgate --timeout 30s watch 0x100 0x104
//	srvgate launch 0x0004003000008F02 nand
//	srvgate firm-set 0011223344
//
// Exit status is 2 when the platform returned a failure result code and 1
// for any other error.
package main
