// Package worker defines the request/response envelopes exchanged with the
// worker pool. Two envelope versions exist; V2 is authoritative and is what
// the scheduler emits, but callbacks in either version are accepted.
// Readers identify the version by the !Vn YAML tag.
package worker

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/storage"
)

const (
	ClassEphemeral = "ephemeral"
	WorkerFunction = "function"
	ActionStart    = "start"
	ActionNotify   = "Notify"
)

// CallbackStatus is the status a worker reports back for a run.
type CallbackStatus string

const (
	CallbackRunning  CallbackStatus = "Running"
	CallbackDone     CallbackStatus = "Done"
	CallbackError    CallbackStatus = "Error"
	CallbackFailed   CallbackStatus = "Failed"
	CallbackCanceled CallbackStatus = "Canceled"
)

type Callback struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// FunctionInfo carries run identity in the request context.
type FunctionInfo struct {
	CollectionID      string           `yaml:"collection_id"`
	Collection        string           `yaml:"collection"`
	FunctionID        string           `yaml:"function_id"`
	FunctionVersionID string           `yaml:"function_version_id"`
	Function          string           `yaml:"function"`
	FunctionRunID     string           `yaml:"function_run_id"`
	FunctionBundle    storage.Location `yaml:"function_bundle"`
	FunctionData      storage.Location `yaml:"function_data"`
	TransactionID     string           `yaml:"transaction_id"`
	ExecutionID       string           `yaml:"execution_id"`
	ExecutionName     *string          `yaml:"execution_name"`
	TriggeredOn       int64            `yaml:"triggered_on"`
	// ScheduledOn is when the request document was created; V2 only.
	ScheduledOn int64 `yaml:"scheduled_on"`
}

// InputTable is one resolved input slot. Location is null when no such
// version exists and the function is invoked with a null input.
type InputTable struct {
	Name               string            `yaml:"name"`
	CollectionID       string            `yaml:"collection_id"`
	Collection         string            `yaml:"collection"`
	TableID            string            `yaml:"table_id"`
	TableVersionID     string            `yaml:"table_version_id"`
	TableDataVersionID *string           `yaml:"table_data_version_id"`
	FunctionRunID      *string           `yaml:"function_run_id"`
	Location           *storage.Location `yaml:"location"`
	TablePos           int               `yaml:"table_pos"`
	VersionPos         int               `yaml:"version_pos"`
	// InputIdx is the global sequential input id across system and user
	// inputs; V2 only.
	InputIdx int `yaml:"input_idx"`
}

// OutputTable is one pre-allocated destination slot.
type OutputTable struct {
	Name               string           `yaml:"name"`
	CollectionID       string           `yaml:"collection_id"`
	Collection         string           `yaml:"collection"`
	TableID            string           `yaml:"table_id"`
	TableVersionID     string           `yaml:"table_version_id"`
	TableDataVersionID string           `yaml:"table_data_version_id"`
	Location           storage.Location `yaml:"location"`
	TablePos           int              `yaml:"table_pos"`
	// Partitioned outputs get a base location; V2 only.
	Partitioned bool `yaml:"partitioned,omitempty"`
}

// RequestContext orders inputs and outputs the way requirements were
// resolved; array order is significant.
type RequestContext struct {
	Info         FunctionInfo  `yaml:"info"`
	SystemInput  []InputTable  `yaml:"system_input"`
	Input        []InputTable  `yaml:"input"`
	SystemOutput []OutputTable `yaml:"system_output"`
	Output       []OutputTable `yaml:"output"`
}

// Request is the full request envelope handed to a worker.
type Request struct {
	Version  Version        `yaml:"-"`
	Class    string         `yaml:"class"`
	Worker   string         `yaml:"worker"`
	Action   string         `yaml:"action"`
	Callback Callback       `yaml:"callback"`
	Context  RequestContext `yaml:"context"`
}

type Version string

const (
	V1 Version = "!V1"
	V2 Version = "!V2"
)

func (r Request) MarshalYAML() (interface{}, error) {
	type plain Request
	node := &yaml.Node{}
	if err := node.Encode(plain(r)); err != nil {
		return nil, err
	}
	tag := string(r.Version)
	if tag == "" {
		tag = string(V2)
	}
	node.Tag = tag
	return node, nil
}

func (r *Request) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case string(V1), string(V2):
		r.Version = Version(node.Tag)
	case "!!map":
		// Untagged documents are read as the authoritative version.
		r.Version = V2
	default:
		return apierr.New(apierr.Invalid, "unknown request envelope tag %q", node.Tag)
	}
	type plain Request
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	version := r.Version
	*r = Request(p)
	r.Version = version
	return nil
}

// WrittenTable is one output entry of a response: the run wrote data, did
// not modify the table, or wrote a set of partitions.
type WrittenTable struct {
	Kind       WrittenKind
	Table      string
	Partitions map[string]string
}

type WrittenKind string

const (
	WrittenData       WrittenKind = "!Data"
	WrittenNoData     WrittenKind = "!NoData"
	WrittenPartitions WrittenKind = "!Partitions"
)

type writtenTableDoc struct {
	Table      string            `yaml:"table"`
	Partitions map[string]string `yaml:"partitions,omitempty"`
}

func (w WrittenTable) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{}
	if err := node.Encode(writtenTableDoc{Table: w.Table, Partitions: w.Partitions}); err != nil {
		return nil, err
	}
	if w.Kind == "" {
		return nil, fmt.Errorf("written table %q has no kind", w.Table)
	}
	node.Tag = string(w.Kind)
	return node, nil
}

func (w *WrittenTable) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case string(WrittenData), string(WrittenNoData), string(WrittenPartitions):
		w.Kind = WrittenKind(node.Tag)
	default:
		return apierr.New(apierr.Invalid, "unknown output entry tag %q", node.Tag)
	}
	var doc writtenTableDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	w.Table = doc.Table
	w.Partitions = doc.Partitions
	return nil
}

type ResponseContext struct {
	Output []WrittenTable `yaml:"output"`
}

// Response is the callback envelope a worker posts when a run finishes.
type Response struct {
	Version Version         `yaml:"-"`
	ID      string          `yaml:"id"`
	Class   string          `yaml:"class"`
	Worker  string          `yaml:"worker"`
	Action  string          `yaml:"action"`
	Start   int64           `yaml:"start"`
	End     int64           `yaml:"end"`
	Status  CallbackStatus  `yaml:"status"`
	Error   *string         `yaml:"error,omitempty"`
	Context ResponseContext `yaml:"context"`
}

func (r Response) MarshalYAML() (interface{}, error) {
	type plain Response
	node := &yaml.Node{}
	if err := node.Encode(plain(r)); err != nil {
		return nil, err
	}
	tag := string(r.Version)
	if tag == "" {
		tag = string(V2)
	}
	node.Tag = tag
	return node, nil
}

func (r *Response) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case string(V1), string(V2):
		r.Version = Version(node.Tag)
	case "!!map":
		r.Version = V2
	default:
		return apierr.New(apierr.Invalid, "unknown response envelope tag %q", node.Tag)
	}
	type plain Response
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	version := r.Version
	*r = Response(p)
	r.Version = version
	return nil
}

// EncodeRequest serializes a request envelope to its YAML document form.
func EncodeRequest(r *Request) ([]byte, error) {
	b, err := yaml.Marshal(r)
	if err != nil {
		return nil, apierr.Wrap(apierr.Fatal, err, "encode request envelope")
	}
	return b, nil
}

func DecodeRequest(b []byte) (*Request, error) {
	var r Request
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, apierr.Wrap(apierr.Invalid, err, "decode request envelope")
	}
	return &r, nil
}

func EncodeResponse(r *Response) ([]byte, error) {
	b, err := yaml.Marshal(r)
	if err != nil {
		return nil, apierr.Wrap(apierr.Fatal, err, "encode response envelope")
	}
	return b, nil
}

func DecodeResponse(b []byte) (*Response, error) {
	var r Response
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, apierr.Wrap(apierr.Invalid, err, "decode response envelope")
	}
	return &r, nil
}
