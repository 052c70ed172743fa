package solana

import "fmt"

// ExplorerAddressURL returns the Solana Explorer link for an account.
func ExplorerAddressURL(cluster, address string) string {
	return fmt.Sprintf("https://explorer.solana.com/address/%s?cluster=%s", address, cluster)
}

// ExplorerTxURL returns the Solana Explorer link for a transaction.
func ExplorerTxURL(cluster, signature string) string {
	return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=%s", signature, cluster)
}
