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

// These tests must be run serially, since the journal is coordinated by a
// single goroutine.

package journal

import (
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kbase/submeta/config"
	"github.com/kbase/submeta/submetatest"
)

// a fixed instant used as the base timestamp for ordering assertions
var fixedTestTime = time.Date(2024, 11, 19, 16, 37, 21, 0, time.UTC)

// runs all tests serially
func TestRunner(t *testing.T) {
	tester := SerialTests{Test: t}
	tester.TestInitAndFinalize()
	tester.TestRecordSuccessfulStep()
	tester.TestRecordFailedStep()
	tester.TestStepsForSubmissionOrdersByTime()
	tester.TestRecordStepRejectsBadStatus()
}

// This runs setup, runs all tests, and does breakdown.
func TestMain(m *testing.M) {
	var status int
	setup()
	status = m.Run()
	breakdown()
	os.Exit(status)
}

func setup() {
	submetatest.EnableDebugLogging()

	log.Print("Creating testing directory...\n")
	var err error
	TESTING_DIR, err = os.MkdirTemp(os.TempDir(), "submeta-journal-tests-")
	if err != nil {
		log.Panicf("Couldn't create testing directory: %s", err)
	}

	myConfig := strings.ReplaceAll(journalConfig, "TESTING_DIR", TESTING_DIR)
	err = config.Init([]byte(myConfig))
	if err != nil {
		log.Panicf("Couldn't initialize configuration: %s", err)
	}

	if err := os.MkdirAll(config.Service.DataDirectory, 0755); err != nil {
		log.Panicf("Couldn't create data directory: %s", err)
	}
}

func breakdown() {
	if IsOpen() {
		Finalize()
	}
	if TESTING_DIR != "" {
		log.Printf("Deleting testing directory %s...\n", TESTING_DIR)
		os.RemoveAll(TESTING_DIR)
	}
}

// To run the tests serially, we attach them to a SerialTests type and
// have them run by a single test runner.
type SerialTests struct{ Test *testing.T }

func (t *SerialTests) TestInitAndFinalize() {
	assert := assert.New(t.Test)

	assert.False(IsOpen())
	err := Init()
	assert.Nil(err)
	assert.True(IsOpen())
	err = Finalize()
	assert.Nil(err)
	assert.False(IsOpen())
}

func (t *SerialTests) TestRecordSuccessfulStep() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)
	defer Finalize()

	record := Record{
		SubmissionId: "sub-001",
		Step:         "mint_doi",
		Status:       "succeeded",
		Detail:       "10.80210/test-001",
		Time:         testTime(),
	}
	err = RecordStep(record)
	assert.Nil(err)

	steps, err := StepsForSubmission("sub-001")
	assert.Nil(err)
	assert.Len(steps, 1)
	assert.Equal(record.SubmissionId, steps[0].SubmissionId)
	assert.Equal(record.Step, steps[0].Step)
	assert.Equal(record.Status, steps[0].Status)
	assert.Equal(record.Detail, steps[0].Detail)
}

func (t *SerialTests) TestRecordFailedStep() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)
	defer Finalize()

	record := Record{
		SubmissionId: "sub-002",
		Step:         "catalog_publish",
		Status:       "failed",
		Detail:       "connection refused",
		Time:         testTime(),
	}
	err = RecordStep(record)
	assert.Nil(err)

	steps, err := StepsForSubmission("sub-002")
	assert.Nil(err)
	assert.Len(steps, 1)
	assert.Equal("failed", steps[0].Status)
}

func (t *SerialTests) TestStepsForSubmissionOrdersByTime() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)
	defer Finalize()

	base := testTime()
	steps := []Record{
		{SubmissionId: "sub-003", Step: "mint_doi", Status: "started", Time: base},
		{SubmissionId: "sub-003", Step: "mint_doi", Status: "succeeded", Time: base.Add(1)},
		{SubmissionId: "sub-003", Step: "catalog_publish", Status: "started", Time: base.Add(2)},
	}
	for _, s := range steps {
		assert.Nil(RecordStep(s))
	}

	got, err := StepsForSubmission("sub-003")
	assert.Nil(err)
	assert.Len(got, 3)
	assert.Equal("started", got[0].Status)
	assert.Equal("succeeded", got[1].Status)
	assert.Equal("catalog_publish", got[2].Step)

	// a submission with no recorded steps returns an empty slice, not an error
	none, err := StepsForSubmission("sub-does-not-exist")
	assert.Nil(err)
	assert.Empty(none)
}

func (t *SerialTests) TestRecordStepRejectsBadStatus() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)
	defer Finalize()

	err = RecordStep(Record{SubmissionId: "sub-004", Step: "mint_doi", Status: "bogus", Time: testTime()})
	assert.NotNil(err)
}

// testTime returns a fixed timestamp; journal keys order by their
// fixed-width UTC timestamp, so callers bump it with Add to control
// ordering.
func testTime() time.Time {
	return fixedTestTime
}

// temporary testing directory
var TESTING_DIR string

// configuration
const journalConfig string = `
service:
  name: test
  data_dir: TESTING_DIR/data
`
