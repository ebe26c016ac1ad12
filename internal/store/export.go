package store

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/linkage/internal/dynamo"
)

// RunInfo describes how a trajectory was produced.
type RunInfo struct {
	Mechanism   string   `json:"mechanism"`
	Integrator  string   `json:"integrator"`
	Controller  string   `json:"controller"`
	Dt          float64  `json:"dt"`
	Duration    float64  `json:"duration"`
	Coordinates []string `json:"coordinates"`
}

type ExportData struct {
	RunInfo
	Steps    int                `json:"steps"`
	Times    []float64          `json:"times"`
	Q        [][]float64        `json:"q"`
	DQ       [][]float64        `json:"dq"`
	DDQ      [][]float64        `json:"ddq,omitempty"`
	Controls [][]float64        `json:"controls,omitempty"`
	Metrics  map[string]float64 `json:"metrics"`
}

func NewExportData(info RunInfo, result *dynamo.Result) *ExportData {
	data := &ExportData{
		RunInfo: info,
		Steps:   len(result.Times),
		Times:   result.Times,
		Metrics: result.Metrics,
	}
	for _, x := range result.States {
		q, dq := x.Split()
		data.Q = append(data.Q, []float64(q))
		data.DQ = append(data.DQ, []float64(dq))
	}
	for _, a := range result.Accelerations {
		data.DDQ = append(data.DDQ, []float64(a))
	}
	for _, u := range result.Controls {
		data.Controls = append(data.Controls, []float64(u))
	}
	return data
}

func WriteJSON(w io.Writer, info RunInfo, result *dynamo.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(info, result))
}

func ExportJSON(path string, info RunInfo, result *dynamo.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(file, info, result); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ExportJSONStdout(info RunInfo, result *dynamo.Result) error {
	return WriteJSON(os.Stdout, info, result)
}
