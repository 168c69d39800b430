package ops

import "encoding/xml"

// Datastores targeted by get-config, edit-config, lock and commit.
const (
	RunningCfg   = "running"
	CandidateCfg = "candidate"
)

// Values of the edit-config error-option element.
const (
	RollbackOnErrorErrOpt = "rollback-on-error"
)

// Values of the edit-config default-operation element. A replace default swaps the whole
// datastore for the supplied configuration; merge folds it into what is already there.
const (
	MergeOp   = "merge"
	ReplaceOp = "replace"
)

// TestOnlyOpt asks the device to validate an edit-config without applying it.
const TestOnlyOpt = "test-only"

// Data holds the payload of a get or get-config reply. Content keeps the raw configuration so
// it can be written back to a device unchanged.
type Data struct {
	XMLName xml.Name    `xml:"data"`
	Body    interface{} `xml:",any"`
	Content string      `xml:",innerxml"`
}
