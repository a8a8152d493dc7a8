package contract

import (
	"github.com/cronos-sched/cronos/internal/asset"
)

// Dumb is the payload of the no-op action, also the default scheduled call.
type Dumb struct {
	From string `json:"from"`
}

// Schedule asks for Account::Action to run every Period seconds.
type Schedule struct {
	From    string `json:"from"`
	Account string `json:"account"`
	Action  string `json:"action"`
	Period  int64  `json:"period"`
}

// Withdraw pays Quantity of the sender's balance back out.
type Withdraw struct {
	From     string      `json:"from"`
	Quantity asset.Asset `json:"quantity"`
}

// Toggle enables or disables a timetable entry.
type Toggle struct {
	From  string `json:"from"`
	JobID uint64 `json:"job_id"`
}

// RunDue triggers one execution pass.
type RunDue struct {
	BatchLimit int `json:"batch_limit"`
}

// Run is the self-rescheduling polling loop.
type Run struct {
	From            string `json:"from"`
	PollingInterval uint32 `json:"polling_interval"`
	RowsCount       int    `json:"rows_count"`
}

// Admin is the payload of start and stop.
type Admin struct {
	From string `json:"from"`
}
