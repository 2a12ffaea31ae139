package entity

// AllModels 需要自动迁移的全部表
func AllModels() []interface{} {
	return []interface{}{
		&ManufacturingOrder{},
		&PurchaseOrder{},
		&ProcurementRequirement{},
		&ApprovalRequest{},
		&CostVarianceRecord{},
		&LaborEntry{},
		&Supplier{},
		&StockLevel{},
		&StockMovement{},
		&ItemCost{},
		&ActivityLog{},
	}
}
