/*
Copyright 2024 University of Stuttgart

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package recommend implements the voter-based plugin recommendation
// engine: parallel voter fan-out under a deadline, weighted vote merging
// and admissibility filtering, plus the experiment context enrichment
// fetched from the backend service.
package recommend

import (
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// DataQuality rates the output data of an experiment step.
type DataQuality string

const (
	QualityUnknown DataQuality = "UNKNOWN"
	QualityBad     DataQuality = "BAD"
	QualityNeutral DataQuality = "NEUTRAL"
	QualityGood    DataQuality = "GOOD"
)

// Acceptable reports whether step output data of this quality should
// influence recommendations.
func (q DataQuality) Acceptable() bool {
	switch q {
	case QualityUnknown, QualityBad, QualityNeutral, QualityGood, "":
		return q != QualityBad
	default:
		return false
	}
}

// StepStatus is the lifecycle state of an experiment timeline step.
type StepStatus string

const (
	StepPending StepStatus = "PENDING"
	StepUnknown StepStatus = "UNKNOWN"
	StepFailure StepStatus = "FAILURE"
	StepSuccess StepStatus = "SUCCESS"
)

// DataItem describes one piece of experiment data by type and content
// type.
type DataItem struct {
	DataType    string `json:"dataType"`
	ContentType string `json:"contentType"`
	Name        string `json:"name,omitempty"`
}

// Matches reports whether the item can serve the given IO requirement,
// with "*" wildcards on either side.
func (d DataItem) Matches(io catalog.IOData) bool {
	if !catalog.SplitDataValue(d.DataType).Matches(io.DataType) {
		return false
	}
	if len(io.ContentTypes) == 0 {
		return true
	}
	ct := catalog.SplitDataValue(d.ContentType)
	for _, accepted := range io.ContentTypes {
		if ct.Matches(accepted) {
			return true
		}
	}
	return false
}

// Context carries everything the voters may consider. All fields are
// optional; voters ignore what they do not need.
type Context struct {
	// CurrentPluginID is the plugin of the step the user is looking at.
	CurrentPluginID int64
	// CurrentData is the data selection the user wants processed next.
	CurrentData []DataItem
	// StepInputData and StepOutputData belong to the current step.
	StepInputData  []DataItem
	StepOutputData []DataItem
	// AvailableData maps data types to the content types present in the
	// experiment.
	AvailableData map[string][]string
	// ExperimentID and CurrentStep address the experiment timeline.
	ExperimentID int64
	CurrentStep  int64
	// HasStep marks CurrentStep as explicitly set; step sequence numbers
	// start at zero.
	HasStep bool
	// StepSuccess is true when the current step finished successfully.
	StepSuccess bool
	// StepError holds the failure message of an unsuccessful step.
	StepError string
	// StepDataQuality rates the current step's output data.
	StepDataQuality DataQuality
}

// AvailableDataItems flattens the available-data map into data items.
func (c *Context) AvailableDataItems() []DataItem {
	var items []DataItem
	for dataType, contentTypes := range c.AvailableData {
		if len(contentTypes) == 0 {
			items = append(items, DataItem{DataType: dataType, ContentType: "*"})
			continue
		}
		for _, contentType := range contentTypes {
			items = append(items, DataItem{DataType: dataType, ContentType: contentType})
		}
	}
	return items
}

// satisfiable reports whether every required input can be served by at
// least one of the items.
func satisfiable(required []catalog.IOData, items []DataItem) bool {
	for _, io := range required {
		found := false
		for _, item := range items {
			if item.Matches(io) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
