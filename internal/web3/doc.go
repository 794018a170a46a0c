// Package web3 defines the wallet provider capability exposed to agents and
// the boundary interfaces it delegates to: a signing WalletClient and a
// read-only ReceiptClient. Concrete go-ethereum implementations live in the
// ethereum subpackage; the provider subpackage holds the adapter and the
// config driven registry of providers per chain.
package web3
