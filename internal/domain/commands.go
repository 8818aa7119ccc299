package domain

import (
	"time"

	"github.com/eleven-am/gridboot/internal/xjson"
)

type CommandType uint8

const (
	CommandActivate CommandType = iota + 1
	CommandSetBaseline
	CommandCreateDataset
)

func (t CommandType) String() string {
	switch t {
	case CommandActivate:
		return "activate"
	case CommandSetBaseline:
		return "set-baseline"
	case CommandCreateDataset:
		return "create-dataset"
	default:
		return "unknown"
	}
}

// Command is the unit replicated through the consensus log.
type Command struct {
	Type      CommandType        `json:"type"`
	Active    bool               `json:"active,omitempty"`
	Baseline  NodeSet            `json:"baseline,omitempty"`
	Dataset   *DatasetDefinition `json:"dataset,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Created is set by create-dataset: false means the dataset already existed.
	Created  bool   `json:"created,omitempty"`
	Revision uint64 `json:"revision,omitempty"`
}

func NewActivateCommand(active bool) *Command {
	return &Command{
		Type:      CommandActivate,
		Active:    active,
		Timestamp: time.Now(),
	}
}

func NewSetBaselineCommand(nodes NodeSet) *Command {
	return &Command{
		Type:      CommandSetBaseline,
		Baseline:  nodes,
		Timestamp: time.Now(),
	}
}

func NewCreateDatasetCommand(def DatasetDefinition) *Command {
	return &Command{
		Type:      CommandCreateDataset,
		Dataset:   &def,
		Timestamp: time.Now(),
	}
}

func (c *Command) Marshal() ([]byte, error) {
	return xjson.Marshal(c)
}

func UnmarshalCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := xjson.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}
