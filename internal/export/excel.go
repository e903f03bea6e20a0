// Package export renders reservation listings as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"residia/internal/model"
)

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const maxSheetName = 31

var reservationColumns = []string{
	"ID", "Date", "Start", "End", "Amenity", "Subject", "Created By", "Unit", "Status", "Notes", "Admin Notes",
}

// Sheet writes rows sequentially into one worksheet.
type Sheet struct {
	file *excelize.File
	name string
	row  int
}

// NewSheet creates a workbook whose first sheet is named name.
func NewSheet(name string) *Sheet {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	f := excelize.NewFile()
	_ = f.SetSheetName("Sheet1", name)
	return &Sheet{file: f, name: name, row: 1}
}

// WriteHeader writes bold column headers.
func (s *Sheet) WriteHeader(columns []string) error {
	if err := s.writeRow(toCells(columns)); err != nil {
		return err
	}

	style, err := s.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	start, _ := excelize.CoordinatesToCellName(1, s.row-1)
	end, _ := excelize.CoordinatesToCellName(len(columns), s.row-1)
	return s.file.SetCellStyle(s.name, start, end, style)
}

// WriteRow appends one data row.
func (s *Sheet) WriteRow(values []any) error {
	return s.writeRow(values)
}

func (s *Sheet) writeRow(values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, s.row)
		if err != nil {
			return err
		}
		if err := s.file.SetCellValue(s.name, cell, v); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}
	s.row++
	return nil
}

// Save writes the workbook to w.
func (s *Sheet) Save(w io.Writer) error {
	return s.file.Write(w)
}

func (s *Sheet) Close() error {
	return s.file.Close()
}

// WriteReservations renders reservations into an xlsx workbook written to w.
func WriteReservations(w io.Writer, list []model.Reservation) error {
	sheet := NewSheet("Reservations")
	defer sheet.Close()

	if err := sheet.WriteHeader(reservationColumns); err != nil {
		return err
	}
	for i := range list {
		if err := sheet.WriteRow(reservationRow(&list[i])); err != nil {
			return fmt.Errorf("reservation %d: %w", list[i].ID, err)
		}
	}
	return sheet.Save(w)
}

func reservationRow(r *model.Reservation) []any {
	unit := ""
	if r.UnitID != nil {
		unit = fmt.Sprint(*r.UnitID)
	}
	amenity := r.AmenityName
	if amenity == "" {
		amenity = fmt.Sprint(r.AmenityID)
	}
	return []any{
		r.ID,
		r.Date.String(),
		r.StartTime.String(),
		r.EndTime.String(),
		amenity,
		r.SubjectUserID,
		r.CreatedBy,
		unit,
		string(r.Status),
		r.Notes,
		r.AdminNotes,
	}
}

func toCells(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}
