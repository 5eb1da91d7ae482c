package oracle

import (
	"fmt"

	"github.com/edgeandnode/qos-oracle/pkg/config"
)

// Admission is the submission gate's verdict for one batch.
type Admission struct {
	Accepted bool
	Reason   string
}

// Admit checks the batch submitter against the allow-list. A rejected batch
// is recorded with valid=false and the reason; no blob retrieval or
// aggregation happens for it.
func Admit(cfg config.Config, submitter string) Admission {
	if cfg.AllowedSubmitter(submitter) {
		return Admission{Accepted: true}
	}
	return Admission{
		Accepted: false,
		Reason:   fmt.Sprintf("submitter %s is not on the allow-list", submitter),
	}
}
