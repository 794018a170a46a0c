// Package walletapi is a Go client for the agentkit wallet REST API.
package walletapi
