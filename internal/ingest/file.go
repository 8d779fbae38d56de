package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tripscore/internal/catalog"
	"tripscore/internal/model"
)

// ReadTripFile loads a trip JSON file. When a CSV file with the same base name
// sits next to it, its rows are appended to the trip's detections.
func ReadTripFile(path string, cat *catalog.Catalog) (model.Trip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Trip{}, err
	}
	trip, err := DecodeTrip(data, cat)
	if err != nil {
		return model.Trip{}, fmt.Errorf("%s: %w", path, err)
	}
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
	if _, err := os.Stat(sidecar); err == nil {
		if err := AppendDetectionsFile(&trip, sidecar, cat); err != nil {
			return model.Trip{}, err
		}
	}
	return trip, nil
}

func AppendDetectionsFile(trip *model.Trip, path string, cat *catalog.Catalog) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dets, err := ReadDetectionsCSV(f, trip.StartTime, cat)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	trip.Detections = append(trip.Detections, dets...)
	return nil
}
