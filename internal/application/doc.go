// Package application wires the flattener, result store, metrics, HTTP
// handlers and server together so that the command package only deals with
// flag parsing and process lifecycle.
package application
