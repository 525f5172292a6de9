package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"hydro-events/internal/domain"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ZoneEventsExportHeader 台账导出表头
var ZoneEventsExportHeader = []string{
	"Event ID",
	"Server TS",
	"Kind",
	"Entity Type",
	"Entity ID",
	"Payload",
	"Created At",
}

// exportLimit 单次导出的台账行上限
const exportLimit = 10000

// ExportEvents 导出区域事件台账为 Excel 文件
func (h *ZoneHandler) ExportEvents(w http.ResponseWriter, r *http.Request, zoneID string) {
	afterEventID := parseUint64(r.URL.Query().Get("after_event_id"), 0)

	events, err := h.snapshotSvc.ListEventsSince(r.Context(), zoneID, afterEventID, exportLimit)
	if err != nil {
		h.logger.Error("Failed to list zone events for export",
			zap.String("zone_id", zoneID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export zone events"))
		return
	}

	data, err := GenerateZoneEventsExport(events)
	if err != nil {
		h.logger.Error("Failed to generate events export",
			zap.String("zone_id", zoneID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export file"))
		return
	}

	filename := fmt.Sprintf("zone-events-%s-%s.xlsx", zoneID, time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GenerateZoneEventsExport 生成台账导出 Excel 文件
// events 为空时只生成表头
func GenerateZoneEventsExport(events []*domain.ZoneEvent) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Zone Events"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 设置表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range ZoneEventsExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to build header cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header cell: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to style header cell: %w", err)
		}
	}

	// 写入数据行
	for row, ev := range events {
		values := []any{
			ev.EventID,
			ev.ServerTS,
			string(ev.Kind),
			ev.EntityType,
			ev.EntityID,
			string(ev.Payload),
			ev.CreatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to build data cell name: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write data cell: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}
