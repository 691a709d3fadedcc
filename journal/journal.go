// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package journal

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kbase/submeta/config"
)

// This is the publish journal, an append-only record of each step the
// publish orchestrator (spec.md §4.J) takes for a submission: minting a
// DOI, updating DOI metadata, publishing the catalog entry, registering
// access-management resources, the local commit, and the ingestion
// trigger. It gives operators an audit trail independent of the
// submission's own registration row; RecoverIncomplete's startup scan
// does not read it.

// a record of one publish-orchestrator step's outcome for a submission
type Record struct {
	SubmissionId string
	Step         string // "mint_doi", "update_doi", "catalog_publish", "access_register", "commit", "ingest_trigger"
	Status       string // "started", "succeeded", "failed"
	Detail       string
	Time         time.Time
}

// initialize the publish journal
func Init() error {
	if !IsOpen() {
		go journalProcess()
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// saves and closes the publish journal (if it's been opened)
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		closeChannels()
	}
	return nil
}

// returns true if the journal is open for writing, false if not
func IsOpen() bool {
	if channels_.Open { // has Init() been called?
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second): // after a second, we assume the goroutine has crashed
			closeChannels()
			return false
		}
	}
	return false
}

// records the outcome of one publish step
func RecordStep(record Record) error {
	switch record.Status {
	case "started", "succeeded", "failed":
	default:
		return &NewRecordError{
			SubmissionId: record.SubmissionId,
			Message:      fmt.Sprintf("invalid status: %s", record.Status),
		}
	}

	if !IsOpen() {
		return &NotOpenError{}
	}

	channels_.Input.CreateRecord <- record
	return <-channels_.Output.Error
}

// retrieves every recorded step for the given submission, oldest first
func StepsForSubmission(submissionId string) ([]Record, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.FetchRecords <- submissionId
	select {
	case records := <-channels_.Output.Records:
		return records, nil
	case err := <-channels_.Output.Error:
		return nil, err
	}
}

//-----------
// Internals
//-----------

// The bbolt database gets its own goroutine so it doesn't bring down the entire service if it
// crashes. Here we define "input" channels (main process -> goroutine) and "output" channels
// (goroutine -> main process) for passing data back and forth

var channels_ struct {
	Open  bool // true if channels are open, false if not
	Input struct {
		CreateRecord chan Record   // for creating new records
		CheckIfOpen  chan struct{} // for checking to see whether the database is open
		FetchRecords chan string   // for fetching records for a submission id
		Shutdown     chan struct{} // for shutting down the database
	}

	Output struct {
		Records chan []Record // for returning records
		Error   chan error    // for returning errors
		IsOpen  chan bool     // for answering queries about whether the database is open
	}
}

var publishStepsBucket = []byte("publish_steps")

func journalProcess() {
	dbPath := filepath.Join(config.Service.DataDirectory, fmt.Sprintf("%s-journal.db", config.Service.Name))
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		channels_.Output.Error <- &CantOpenError{Message: err.Error()}
	}

	db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(publishStepsBucket)
		return err
	})

	openChannels()

	running := true
	for running {
		select {

		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true // always true if this goroutine is running!

		case record := <-channels_.Input.CreateRecord:
			err := createRecord(db, record)
			channels_.Output.Error <- err

		case submissionId := <-channels_.Input.FetchRecords:
			records, err := fetchRecords(db, submissionId)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Records <- records
			}

		case <-channels_.Input.Shutdown:
			err := db.Close()
			if err != nil {
				channels_.Output.Error <- &CantCloseError{Message: err.Error()}
			}
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateRecord = make(chan Record)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchRecords = make(chan string)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Records = make(chan []Record)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateRecord)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchRecords)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Records)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

// recordKeyTimeLayout is RFC3339 with a fixed nine-digit fraction, so
// that (in UTC) the text of a key sorts in time order.
const recordKeyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// recordKey orders entries lexically within a submission by time, then
// breaks ties with the step name.
func recordKey(record Record) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", record.SubmissionId, record.Time.UTC().Format(recordKeyTimeLayout), record.Step))
}

func createRecord(db *bolt.DB, record Record) error {
	tx, err := db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	data, err := json.Marshal(record)
	if err != nil {
		return &NewRecordError{SubmissionId: record.SubmissionId, Message: err.Error()}
	}

	bucket := tx.Bucket(publishStepsBucket)
	if err := bucket.Put(recordKey(record), data); err != nil {
		return err
	}
	return tx.Commit()
}

func fetchRecords(db *bolt.DB, submissionId string) ([]Record, error) {
	records := make([]Record, 0)
	prefix := []byte(submissionId + "/")
	err := db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(publishStepsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return &InvalidRecordError{SubmissionId: submissionId, Message: err.Error()}
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
