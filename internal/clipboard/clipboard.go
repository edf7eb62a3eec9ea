// Package clipboard copies discovered lighthouse addresses to the system
// clipboard.
package clipboard

import (
	"strings"

	"github.com/atotto/clipboard"
)

// Join renders addresses in discovery order as a single space-separated
// string, the format the console launchers accept back as arguments.
func Join(addresses []string) string {
	return strings.Join(addresses, " ")
}

// CopyAddresses writes the joined address list to the system clipboard.
func CopyAddresses(addresses []string) error {
	return clipboard.WriteAll(Join(addresses))
}
