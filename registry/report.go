package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhikar/registry/ledger"
)

// Report is a verification result with a public explorer link, as served to
// auditors and chat bots.
type Report struct {
	*ledger.VerificationResult
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// Text renders the report as a plain chat reply.
func (r *Report) Text() string {
	var b strings.Builder
	switch {
	case r.IsClaimRecord && r.ClaimData != nil:
		cd := r.ClaimData
		b.WriteString("Valid land claim found\n\n")
		fmt.Fprintf(&b, "Owner: %s\n", cd.OwnerName)
		fmt.Fprintf(&b, "Location: %s\n", cd.Location)
		fmt.Fprintf(&b, "Claim ID: %s\n", cd.ClaimID.String())
		fmt.Fprintf(&b, "Verified by: %s\n", shortAddress(cd.VerifiedBy.Hex()))
		fmt.Fprintf(&b, "Block: %d\n", cd.BlockNumber)
		fmt.Fprintf(&b, "Verified on: %s\n", cd.Timestamp.UTC().Format(time.RFC1123))
	case r.Valid:
		b.WriteString("Transaction found\n\n")
		b.WriteString("This is a valid ledger transaction, but it is not a land claim record.\n\n")
		fmt.Fprintf(&b, "Transaction: %s\n", r.TxRef)
		fmt.Fprintf(&b, "Block: %d\n", r.BlockNumber)
	default:
		b.WriteString("Claim not found\n\n")
		b.WriteString("No verified land claim exists for this transaction hash. ")
		b.WriteString("The hash may be mistyped, or the claim may still be waiting for council votes.\n")
	}
	if r.ExplorerURL != "" {
		fmt.Fprintf(&b, "\n%s\n", r.ExplorerURL)
	}
	return b.String()
}

func shortAddress(addr string) string {
	if len(addr) <= 18 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-8:]
}
