// Package config loads the JSON configuration of the wallet service: API
// listener and tokens, logging, chain and signer selection, the operation
// journal backend and the receipt tracking queue.
package config
