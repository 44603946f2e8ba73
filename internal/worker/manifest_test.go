package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
	"github.com/tabsdata/tabsdata-server/internal/storage"
)

func sampleRequest() *Request {
	layout := storage.NewLayout("file:///var/tabsdata", "TD_")
	collectionID := ids.New()
	tableID := ids.New()
	runID := ids.New()
	dataVersionID := ids.New()
	execName := "nightly"

	dataLoc := layout.TableData(collectionID, tableID, dataVersionID)
	return &Request{
		Version: V2,
		Class:   ClassEphemeral,
		Worker:  WorkerFunction,
		Action:  ActionStart,
		Callback: Callback{
			URL:    "http://localhost:2457/callback/" + runID,
			Method: "POST",
			Headers: map[string]string{
				"Authorization": "Bearer token",
			},
		},
		Context: RequestContext{
			Info: FunctionInfo{
				CollectionID:      collectionID,
				Collection:        "examples",
				FunctionID:        ids.New(),
				FunctionVersionID: ids.New(),
				Function:          "tfr",
				FunctionRunID:     runID,
				FunctionBundle:    layout.Bundle(collectionID, ids.New()),
				FunctionData:      layout.FunctionData(collectionID, ids.New()),
				TransactionID:     ids.New(),
				ExecutionID:       ids.New(),
				ExecutionName:     &execName,
				TriggeredOn:       1720000000000,
				ScheduledOn:       1720000001000,
			},
			SystemInput: []InputTable{},
			Input: []InputTable{
				{
					Name:               "persons",
					CollectionID:       collectionID,
					Collection:         "examples",
					TableID:            tableID,
					TableVersionID:     ids.New(),
					TableDataVersionID: &dataVersionID,
					FunctionRunID:      &runID,
					Location:           &dataLoc,
					TablePos:           0,
					VersionPos:         0,
					InputIdx:           0,
				},
				{
					Name:           "persons",
					CollectionID:   collectionID,
					Collection:     "examples",
					TableID:        tableID,
					TableVersionID: ids.New(),
					// No such historical version: null slot.
					TablePos:   0,
					VersionPos: 1,
					InputIdx:   1,
				},
			},
			SystemOutput: []OutputTable{},
			Output: []OutputTable{
				{
					Name:               "spanish",
					CollectionID:       collectionID,
					Collection:         "examples",
					TableID:            ids.New(),
					TableVersionID:     ids.New(),
					TableDataVersionID: ids.New(),
					Location:           layout.TableData(collectionID, tableID, ids.New()),
					TablePos:           0,
				},
			},
		},
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req := sampleRequest()

	b, err := EncodeRequest(req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "!V2"), "request document must carry the !V2 tag: %s", string(b)[:16])

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestRequestNullInputSlot(t *testing.T) {
	req := sampleRequest()
	b, err := EncodeRequest(req)
	require.NoError(t, err)

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	require.Len(t, got.Context.Input, 2)
	assert.Nil(t, got.Context.Input[1].Location)
	assert.Nil(t, got.Context.Input[1].TableDataVersionID)
	assert.Equal(t, 1, got.Context.Input[1].VersionPos)
}

func TestRequestInputOrderSignificant(t *testing.T) {
	req := sampleRequest()
	b, err := EncodeRequest(req)
	require.NoError(t, err)
	got, err := DecodeRequest(b)
	require.NoError(t, err)
	for i, in := range got.Context.Input {
		assert.Equal(t, i, in.InputIdx)
		assert.Equal(t, i, in.VersionPos)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	errMsg := "boom"
	resp := &Response{
		Version: V2,
		ID:      ids.New(),
		Class:   ClassEphemeral,
		Worker:  WorkerFunction,
		Action:  ActionNotify,
		Start:   1720000002000,
		End:     1720000005000,
		Status:  CallbackFailed,
		Error:   &errMsg,
		Context: ResponseContext{
			Output: []WrittenTable{
				{Kind: WrittenData, Table: "spanish"},
				{Kind: WrittenNoData, Table: "audit"},
				{Kind: WrittenPartitions, Table: "byday", Partitions: map[string]string{
					"2026-08-01": "p-0.t",
					"2026-08-02": "p-1.t",
				}},
			},
		},
	}

	b, err := EncodeResponse(resp)
	require.NoError(t, err)
	assert.Contains(t, string(b), "!Data")
	assert.Contains(t, string(b), "!NoData")
	assert.Contains(t, string(b), "!Partitions")

	got, err := DecodeResponse(b)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestResponseAcceptsV1Tag(t *testing.T) {
	doc := `!V1
id: abc
class: ephemeral
worker: function
action: Notify
start: 1
end: 2
status: Done
context:
  output:
    - !Data {table: out}
`
	got, err := DecodeResponse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, V1, got.Version)
	assert.Equal(t, CallbackDone, got.Status)
	require.Len(t, got.Context.Output, 1)
	assert.Equal(t, WrittenData, got.Context.Output[0].Kind)
}

func TestDecodeUnknownTagRejected(t *testing.T) {
	_, err := DecodeResponse([]byte("!V9\nid: x\n"))
	assert.Error(t, err)
}
