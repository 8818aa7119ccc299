package domain

import "fmt"

// BootstrapDatasetName is the dataset every node requires before it is ready.
const BootstrapDatasetName = "configuration"

type DatasetMode string

const DatasetReplicated DatasetMode = "replicated"

type DatasetDefinition struct {
	Name      string      `json:"name"`
	Mode      DatasetMode `json:"mode"`
	CreatedBy NodeID      `json:"created_by,omitempty"`
}

// DatasetOutcome reports how the dataset came to exist. Two nodes may both
// see it missing; the loser of that race observes CreatedByOther.
type DatasetOutcome int

const (
	DatasetAlreadyPresent DatasetOutcome = iota
	DatasetCreated
	DatasetCreatedByOther
)

func (o DatasetOutcome) String() string {
	switch o {
	case DatasetAlreadyPresent:
		return "already-present"
	case DatasetCreated:
		return "created"
	case DatasetCreatedByOther:
		return "created-by-other"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
