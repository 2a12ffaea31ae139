package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/inventory"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository/memory"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/testutil"
	"github.com/gin-gonic/gin"
)

const apiBase = "/api/v1/mfg"

type handlerEnv struct {
	router *gin.Engine
	inv    *inventory.Memory
	svc    *service.Services
	token  string
}

func setupHandlerTest(t *testing.T) *handlerEnv {
	t.Helper()
	stores := service.Stores{
		MO:          memory.NewMORepository(),
		PO:          memory.NewPORepository(),
		Requirement: memory.NewRequirementRepository(),
		Approval:    memory.NewApprovalRepository(),
		Variance:    memory.NewVarianceRepository(),
		Labor:       memory.NewLaborRepository(),
		Supplier:    memory.NewSupplierRepository(),
		ActivityLog: memory.NewActivityLogRepository(),
		Sequence:    memory.NewSequence(),
	}
	inv := inventory.NewMemory()
	svc := service.NewServices(stores, inv, service.Options{Subsidiary: "US", Currency: "USD"})

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, apiBase)
	NewHandlers(svc, nil).RegisterRoutes(api)

	return &handlerEnv{router: router, inv: inv, svc: svc, token: testutil.DefaultTestToken()}
}

func (e *handlerEnv) do(method, path string, body interface{}) (int, map[string]interface{}) {
	w := testutil.DoRequest(e.router, method, apiBase+path, body, e.token)
	return w.Code, testutil.ParseResponse(w)
}

func data(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected object data, got %v", resp)
	}
	return d
}

func (e *handlerEnv) createMO(t *testing.T, stocked bool) map[string]interface{} {
	t.Helper()
	if stocked {
		e.inv.SetStock("item-oak", "wh-main", 100)
	}
	body := map[string]interface{}{
		"design_item_name": "Oak Dining Table",
		"quantity":         1,
		"bom": []map[string]interface{}{
			{"inventory_item_id": "item-oak", "name": "Oak board", "required_qty": 10, "unit_cost": 25},
		},
	}
	code, resp := e.do(http.MethodPost, "/manufacturing-orders", body)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	return data(t, resp)
}

func TestMOLifecycleOverHTTP(t *testing.T) {
	env := setupHandlerTest(t)
	mo := env.createMO(t, true)
	id := mo["id"].(string)

	if !strings.HasPrefix(mo["mo_number"].(string), "MO-") {
		t.Fatalf("unexpected MO number %v", mo["mo_number"])
	}
	if mo["status"] != "draft" {
		t.Fatalf("expected draft, got %v", mo["status"])
	}

	code, resp := env.do(http.MethodPost, "/manufacturing-orders/"+id+"/approve", map[string]interface{}{"warehouse_id": "wh-main"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	if data(t, resp)["success"] != true {
		t.Fatalf("expected successful approval, got %v", resp)
	}

	code, resp = env.do(http.MethodPost, "/manufacturing-orders/"+id+"/start", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	code, resp = env.do(http.MethodPost, "/manufacturing-orders/"+id+"/advance", map[string]interface{}{"notes": "cut"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	if got := data(t, resp)["current_stage"]; got != "cutting" {
		t.Fatalf("expected cutting, got %v", got)
	}

	code, resp = env.do(http.MethodGet, "/manufacturing-orders?status=in-progress", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	items := data(t, resp)["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected 1 in-progress MO, got %d", len(items))
	}
}

func TestMOApproveShortageAutoProcure(t *testing.T) {
	env := setupHandlerTest(t)
	mo := env.createMO(t, false)
	id := mo["id"].(string)

	code, resp := env.do(http.MethodPost, "/manufacturing-orders/"+id+"/approve", map[string]interface{}{
		"warehouse_id": "wh-main",
		"auto_procure": true,
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	d := data(t, resp)
	if d["success"] != false {
		t.Fatalf("expected shortage result, got %v", d)
	}
	if n := len(d["shortages"].([]interface{})); n != 1 {
		t.Fatalf("expected 1 shortage, got %d", n)
	}
	if n := len(d["requirements"].([]interface{})); n != 1 {
		t.Fatalf("expected 1 generated requirement, got %d", n)
	}
	if got := d["mo"].(map[string]interface{})["status"]; got != "draft" {
		t.Fatalf("expected MO to stay draft, got %v", got)
	}
}

func TestErrorMapping(t *testing.T) {
	env := setupHandlerTest(t)
	mo := env.createMO(t, true)
	id := mo["id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   float64
	}{
		{"not found", http.MethodGet, "/manufacturing-orders/missing", nil, http.StatusNotFound, 40400},
		{"invalid state", http.MethodPost, "/manufacturing-orders/" + id + "/advance", nil, http.StatusConflict, 40900},
		{"validation", http.MethodPut, "/manufacturing-orders/" + id + "/priority", map[string]interface{}{"priority": "asap"}, http.StatusBadRequest, 40000},
		{"bad body", http.MethodPost, "/purchase-orders", map[string]interface{}{}, http.StatusBadRequest, 40000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(tt.method, tt.path, tt.body)
			if code != tt.status {
				t.Fatalf("expected %d, got %d: %v", tt.status, code, resp)
			}
			if resp["code"].(float64) != tt.code {
				t.Fatalf("expected code %v, got %v", tt.code, resp["code"])
			}
		})
	}

	w := testutil.DoRequest(env.router, http.MethodGet, apiBase+"/manufacturing-orders", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestPOFlowOverHTTP(t *testing.T) {
	env := setupHandlerTest(t)

	code, resp := env.do(http.MethodPost, "/suppliers", map[string]interface{}{"code": "S-001", "name": "Timber Co"})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	supplierID := data(t, resp)["id"].(string)

	code, resp = env.do(http.MethodPost, "/purchase-orders", map[string]interface{}{
		"supplier_id": supplierID,
		"line_items": []map[string]interface{}{
			{"description": "Oak board", "inventory_item_id": "item-oak", "quantity": 10, "unit_cost": 20},
		},
		"landed_costs": map[string]interface{}{"shipping": 20, "distribution_method": "proportional_value"},
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	po := data(t, resp)
	id := po["id"].(string)
	lineID := po["line_items"].([]interface{})[0].(map[string]interface{})["id"].(string)

	for _, step := range []string{"submit", "approve", "send"} {
		code, resp = env.do(http.MethodPost, "/purchase-orders/"+id+"/"+step, nil)
		if code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %v", step, code, resp)
		}
	}

	code, resp = env.do(http.MethodPost, "/purchase-orders/"+id+"/receive", map[string]interface{}{
		"warehouse_id": "wh-main",
		"lines":        []map[string]interface{}{{"line_item_id": lineID, "quantity": 11}},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected over-receipt to be rejected, got %d: %v", code, resp)
	}

	code, resp = env.do(http.MethodPost, "/purchase-orders/"+id+"/receive", map[string]interface{}{
		"warehouse_id": "wh-main",
		"lines":        []map[string]interface{}{{"line_item_id": lineID, "quantity": 10}},
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	d := data(t, resp)
	if d["fully_received"] != true {
		t.Fatalf("expected fully received, got %v", d)
	}
	if got, _ := env.inv.Level("item-oak", "wh-main"); got != 10 {
		t.Fatalf("expected stock 10, got %v", got)
	}

	w := testutil.DoRequest(env.router, http.MethodGet, apiBase+"/purchase-orders/"+id+"/export", nil, env.token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestApprovalRoleCheckOverHTTP(t *testing.T) {
	env := setupHandlerTest(t)
	mo := env.createMO(t, true)

	code, resp := env.do(http.MethodPost, "/manufacturing-orders/"+mo["id"].(string)+"/approval", map[string]interface{}{"warehouse_id": "wh-main"})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	reqID := data(t, resp)["request"].(map[string]interface{})["id"].(string)

	w := testutil.DoRequest(env.router, http.MethodPost, apiBase+"/approvals/"+reqID+"/approve", nil, testutil.RoleToken("u-buyer", "buyer"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.router, http.MethodGet, apiBase+"/approvals?role=production_manager", nil, env.token)
	if got := len(testutil.ParseResponse(w)["data"].([]interface{})); got != 1 {
		t.Fatalf("expected 1 open approval for production_manager, got %d", got)
	}

	w = testutil.DoRequest(env.router, http.MethodPost, apiBase+"/approvals/"+reqID+"/approve", map[string]interface{}{"comments": "ok"}, testutil.RoleToken("u-pm", "production_manager"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	d := testutil.Data(t, w)
	if d["request"].(map[string]interface{})["status"] != "approved" {
		t.Fatalf("expected approved request, got %v", d["request"])
	}
	if d["mo_result"].(map[string]interface{})["success"] != true {
		t.Fatalf("expected reservation success, got %v", d["mo_result"])
	}
}

func TestBulkApproveOverHTTP(t *testing.T) {
	env := setupHandlerTest(t)
	mo := env.createMO(t, true)

	code, resp := env.do(http.MethodPost, "/manufacturing-orders/bulk/approve", map[string]interface{}{
		"ids":          []string{mo["id"].(string), "missing"},
		"warehouse_id": "wh-main",
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	d := data(t, resp)
	if d["success_count"].(float64) != 1 || d["failure_count"].(float64) != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %v", d)
	}

	code, _ = env.do(http.MethodPost, "/manufacturing-orders/bulk/approve", map[string]interface{}{"ids": []string{}})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty ids, got %d", code)
	}
}

func TestConsolidateSupplierMismatchOverHTTP(t *testing.T) {
	env := setupHandlerTest(t)
	ctx := context.Background()
	a, err := env.svc.Supplier.Create(ctx, &service.CreateSupplierRequest{Code: "A", Name: "Alpha"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	b, err := env.svc.Supplier.Create(ctx, &service.CreateSupplierRequest{Code: "B", Name: "Beta"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	code, resp := env.do(http.MethodPost, "/manufacturing-orders", map[string]interface{}{
		"design_item_name": "Walnut Chair",
		"bom": []map[string]interface{}{
			{"name": "Walnut", "required_qty": 2, "unit_cost": 50, "supplier_id": a.ID},
			{"name": "Cane", "required_qty": 1, "unit_cost": 10, "supplier_id": b.ID},
		},
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	moID := data(t, resp)["id"].(string)

	code, resp = env.do(http.MethodPost, "/manufacturing-orders/"+moID+"/requirements/generate", nil)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	reqs := resp["data"].([]interface{})
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	var ids []string
	for _, r := range reqs {
		ids = append(ids, r.(map[string]interface{})["id"].(string))
	}

	code, resp = env.do(http.MethodPost, "/requirements/consolidate", map[string]interface{}{
		"requirement_ids": ids,
		"supplier_id":     a.ID,
	})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", code, resp)
	}

	code, resp = env.do(http.MethodGet, "/requirements/pending-by-supplier", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if n := len(resp["data"].([]interface{})); n != 2 {
		t.Fatalf("expected 2 supplier groups, got %d", n)
	}
}

func TestRouteGatesOverHTTP(t *testing.T) {
	env := setupHandlerTest(t)
	mo := env.createMO(t, true)
	planner := testutil.GenerateTestToken("u-planner", "Planner", "planner@test.com", []string{"planner"}, []string{"mfg:read"})

	w := testutil.DoRequest(env.router, http.MethodPost, apiBase+"/manufacturing-orders/bulk/hold",
		map[string]interface{}{"ids": []string{mo["id"].(string)}}, planner)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without bulk permission, got %d", w.Code)
	}

	bulkUser := testutil.GenerateTestToken("u-lead", "Lead", "lead@test.com", []string{"planner"}, []string{PermBulk})
	w = testutil.DoRequest(env.router, http.MethodPost, apiBase+"/manufacturing-orders/bulk/hold",
		map[string]interface{}{"ids": []string{mo["id"].(string)}}, bulkUser)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with bulk permission, got %d", w.Code)
	}

	w = testutil.DoRequest(env.router, http.MethodPost, apiBase+"/approvals/escalate-overdue", nil, planner)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin sweep, got %d", w.Code)
	}
	code, _ := env.do(http.MethodPost, "/approvals/escalate-overdue", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 for admin sweep, got %d", code)
	}

	code, resp := env.do(http.MethodGet, "/manufacturing-orders/"+mo["id"].(string)+"/availability", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	rows, ok := resp["data"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one availability row, got %v", resp["data"])
	}
}

func TestApprovalEscalateRoleCheckOverHTTP(t *testing.T) {
	env := setupHandlerTest(t)
	mo := env.createMO(t, true)

	code, resp := env.do(http.MethodPost, "/manufacturing-orders/"+mo["id"].(string)+"/approval", map[string]interface{}{"warehouse_id": "wh-main"})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	reqID := data(t, resp)["request"].(map[string]interface{})["id"].(string)

	w := testutil.DoRequest(env.router, http.MethodPost, apiBase+"/approvals/"+reqID+"/escalate",
		map[string]interface{}{"reason": "waiting too long"}, testutil.RoleToken("u-buyer", "buyer"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.router, http.MethodPost, apiBase+"/approvals/"+reqID+"/escalate",
		map[string]interface{}{"reason": "waiting too long"}, testutil.RoleToken("u-pm", "production_manager"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if st := testutil.Data(t, w)["status"]; st != "escalated" {
		t.Fatalf("expected escalated request, got %v", st)
	}

	code, _ = env.do(http.MethodPost, "/approvals/"+reqID+"/apply", nil)
	if code != http.StatusConflict {
		t.Fatalf("expected 409 applying an open request, got %d", code)
	}
}
