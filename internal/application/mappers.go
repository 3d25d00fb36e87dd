package application

import "github.com/wms-platform/opname-service/internal/domain"

func ToSessionDTO(s *domain.Session) *SessionDTO {
	if s == nil {
		return nil
	}
	return &SessionDTO{
		SessionID:   s.SessionID,
		SessionType: string(s.SessionType),
		Status:      string(s.Status),
		Notes:       s.Notes,
		Counters:    s.Counters,
		CreatedBy:   s.CreatedBy,
		StartedAt:   s.StartedAt,
		CompletedBy: s.CompletedBy,
		CompletedAt: s.CompletedAt,
		ApprovedBy:  s.ApprovedBy,
		ApprovedAt:  s.ApprovedAt,
		LockedAt:    s.LockedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func ToSnapshotItemDTO(i *domain.SnapshotItem) SnapshotItemDTO {
	dto := SnapshotItemDTO{
		ItemID:                i.ItemID,
		UnitID:                i.UnitID,
		IMEI:                  i.IMEI,
		ProductLabel:          i.ProductLabel,
		SellingPrice:          i.SellingPrice,
		CostPrice:             i.CostPrice,
		StockStatusAtSnapshot: i.StockStatusAtSnapshot,
		ScanResult:            string(i.ScanResult),
		ActionNotes:           i.ActionNotes,
		SoldReferenceID:       i.SoldReferenceID,
		ActionedBy:            i.ActionedBy,
		ActionedAt:            i.ActionedAt,
	}
	if i.ActionTaken != nil {
		dto.ActionTaken = string(*i.ActionTaken)
	}
	return dto
}

func ToScannedItemDTO(s *domain.ScannedItem) ScannedItemDTO {
	dto := ScannedItemDTO{
		ScanID:      s.ScanID,
		IMEI:        s.IMEI,
		ItemID:      s.ItemID,
		ScanResult:  string(s.ScanResult),
		ScannedAt:   s.ScannedAt,
		ScannedBy:   s.ScannedBy,
		ActionNotes: s.ActionNotes,
		ActionedBy:  s.ActionedBy,
		ActionedAt:  s.ActionedAt,
	}
	if s.ActionTaken != nil {
		dto.ActionTaken = string(*s.ActionTaken)
	}
	return dto
}

func toSnapshotItemDTOs(items []*domain.SnapshotItem) []SnapshotItemDTO {
	out := make([]SnapshotItemDTO, 0, len(items))
	for _, i := range items {
		out = append(out, ToSnapshotItemDTO(i))
	}
	return out
}

func toScannedItemDTOs(scans []*domain.ScannedItem) []ScannedItemDTO {
	out := make([]ScannedItemDTO, 0, len(scans))
	for _, s := range scans {
		out = append(out, ToScannedItemDTO(s))
	}
	return out
}
