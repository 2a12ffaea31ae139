package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
)

// SupplierService 供应商目录
type SupplierService struct {
	suppliers  SupplierStore
	subsidiary string
}

func NewSupplierService(suppliers SupplierStore, subsidiary string) *SupplierService {
	return &SupplierService{suppliers: suppliers, subsidiary: subsidiary}
}

type CreateSupplierRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Subsidiary   string `json:"subsidiary"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	Currency     string `json:"currency"`
}

func (s *SupplierService) Create(ctx context.Context, req *CreateSupplierRequest) (*entity.Supplier, error) {
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, validation("supplier code and name are required")
	}
	subsidiary := req.Subsidiary
	if subsidiary == "" {
		subsidiary = s.subsidiary
	}
	sup := &entity.Supplier{
		ID:           newID(),
		Code:         strings.TrimSpace(req.Code),
		Name:         strings.TrimSpace(req.Name),
		Subsidiary:   subsidiary,
		Status:       entity.SupplierStatusActive,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		Currency:     req.Currency,
	}
	if err := s.suppliers.Create(ctx, sup); err != nil {
		return nil, fmt.Errorf("create supplier: %w", err)
	}
	return sup, nil
}

func (s *SupplierService) Get(ctx context.Context, id string) (*entity.Supplier, error) {
	sup, err := s.suppliers.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "supplier "+id)
	}
	return sup, nil
}

// SearchActive 按名称或编码模糊查找启用中的供应商
func (s *SupplierService) SearchActive(ctx context.Context, term, subsidiary string) ([]entity.Supplier, error) {
	if subsidiary == "" {
		subsidiary = s.subsidiary
	}
	return s.suppliers.SearchActive(ctx, strings.TrimSpace(term), subsidiary)
}
