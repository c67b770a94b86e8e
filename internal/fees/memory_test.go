package fees

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/madrasa-erp/madrasa/internal/shared"
)

type memoryFeeRepo struct {
	mu           sync.Mutex
	sequences    map[string]int
	fees         map[int64]Fee
	invoices     map[string]int64
	waivers      map[int64]FeeWaiver
	applications map[int64][]WaiverApplication
	installments map[int64][]Installment
	policies     []LateFeePolicy
	charges      map[int64][]LateFeeCharge
	payments     map[int64][]Payment
	holidays     []Holiday
	nextID       int64
	txCalls      int
}

func newMemoryFeeRepo() *memoryFeeRepo {
	return &memoryFeeRepo{
		sequences:    make(map[string]int),
		fees:         make(map[int64]Fee),
		invoices:     make(map[string]int64),
		waivers:      make(map[int64]FeeWaiver),
		applications: make(map[int64][]WaiverApplication),
		installments: make(map[int64][]Installment),
		charges:      make(map[int64][]LateFeeCharge),
		payments:     make(map[int64][]Payment),
	}
}

func (r *memoryFeeRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryFeeRepo) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	r.mu.Lock()
	r.txCalls++
	r.mu.Unlock()
	return fn(ctx, r)
}

func (r *memoryFeeRepo) NextInvoiceSequence(_ context.Context, bucket string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences[bucket]++
	return r.sequences[bucket], nil
}

func (r *memoryFeeRepo) InsertFee(_ context.Context, fee Fee) (Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.invoices[fee.InvoiceNumber]; exists {
		return Fee{}, errInvoiceCollision
	}
	fee.ID = r.id()
	r.fees[fee.ID] = fee
	r.invoices[fee.InvoiceNumber] = fee.ID
	return fee, nil
}

func (r *memoryFeeRepo) GetFee(_ context.Context, id int64) (Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fee, ok := r.fees[id]
	if !ok {
		return Fee{}, ErrFeeNotFound
	}
	return fee, nil
}

func (r *memoryFeeRepo) LockFee(ctx context.Context, id int64) (Fee, error) {
	return r.GetFee(ctx, id)
}

func (r *memoryFeeRepo) UpdateFee(_ context.Context, fee Fee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fees[fee.ID]; !ok {
		return ErrFeeNotFound
	}
	r.fees[fee.ID] = fee
	return nil
}

func (r *memoryFeeRepo) filtered(filter FeeFilter) []Fee {
	out := make([]Fee, 0, len(r.fees))
	for _, f := range r.fees {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.StudentID != 0 && f.StudentID != filter.StudentID {
			continue
		}
		if filter.FeeType != "" && f.FeeType != filter.FeeType {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryFeeRepo) ListFees(_ context.Context, filter FeeFilter) ([]Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.filtered(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Fee{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryFeeRepo) CountFees(_ context.Context, filter FeeFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.filtered(filter)), nil
}

func (r *memoryFeeRepo) ListOutstandingFees(_ context.Context, dueBefore time.Time) ([]Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Fee
	for _, f := range r.filtered(FeeFilter{}) {
		if f.Status != StatusPaid && f.DueDate.Before(dueBefore) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memoryFeeRepo) InsertWaiver(_ context.Context, w FeeWaiver) (FeeWaiver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.ID = r.id()
	r.waivers[w.ID] = w
	return w, nil
}

func (r *memoryFeeRepo) GetWaiver(_ context.Context, id int64) (FeeWaiver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waivers[id]
	if !ok {
		return FeeWaiver{}, ErrWaiverNotFound
	}
	return w, nil
}

func (r *memoryFeeRepo) UpdateWaiverStatus(_ context.Context, id int64, status WaiverStatus, reviewer int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waivers[id]
	if !ok {
		return ErrWaiverNotFound
	}
	w.Status = status
	w.ReviewedBy = &reviewer
	w.ReviewedAt = &at
	r.waivers[id] = w
	return nil
}

func (r *memoryFeeRepo) ListStudentWaivers(_ context.Context, studentID int64) ([]FeeWaiver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FeeWaiver
	for _, w := range r.waivers {
		if w.StudentID == studentID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryFeeRepo) ExpireWaivers(_ context.Context, asOf time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, w := range r.waivers {
		if w.Status == WaiverApproved && w.ValidUntil.Before(asOf) {
			w.Status = WaiverExpired
			r.waivers[id] = w
			n++
		}
	}
	return n, nil
}

func (r *memoryFeeRepo) ListWaiverApplications(_ context.Context, feeID int64) ([]WaiverApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WaiverApplication(nil), r.applications[feeID]...), nil
}

func (r *memoryFeeRepo) InsertWaiverApplication(_ context.Context, app WaiverApplication) (WaiverApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.applications[app.FeeID] {
		if a.WaiverID == app.WaiverID {
			return WaiverApplication{}, ErrWaiverApplied
		}
	}
	app.ID = r.id()
	r.applications[app.FeeID] = append(r.applications[app.FeeID], app)
	return app, nil
}

func (r *memoryFeeRepo) ReplaceInstallments(_ context.Context, feeID int64, plan []Installment) ([]Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Installment, len(plan))
	for i, inst := range plan {
		inst.ID = r.id()
		inst.FeeID = feeID
		out[i] = inst
	}
	r.installments[feeID] = out
	return append([]Installment(nil), out...), nil
}

func (r *memoryFeeRepo) ListInstallments(_ context.Context, feeID int64) ([]Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Installment(nil), r.installments[feeID]...), nil
}

func (r *memoryFeeRepo) UpdateInstallments(_ context.Context, plan []Installment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range plan {
		list := r.installments[inst.FeeID]
		for i := range list {
			if list[i].ID == inst.ID {
				list[i] = inst
			}
		}
	}
	return nil
}

func (r *memoryFeeRepo) InsertPolicy(_ context.Context, p LateFeePolicy) (LateFeePolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	r.policies = append(r.policies, p)
	return p, nil
}

func (r *memoryFeeRepo) ListPolicies(_ context.Context) ([]LateFeePolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LateFeePolicy(nil), r.policies...), nil
}

func (r *memoryFeeRepo) ListActivePolicies(_ context.Context, feeType string) ([]LateFeePolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LateFeePolicy
	for _, p := range r.policies {
		if p.AppliesTo(feeType) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryFeeRepo) ReplaceLateFeeCharges(_ context.Context, feeID int64, charges []LateFeeCharge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charges[feeID] = append([]LateFeeCharge(nil), charges...)
	return nil
}

func (r *memoryFeeRepo) InsertPayment(_ context.Context, p Payment) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	r.payments[p.FeeID] = append(r.payments[p.FeeID], p)
	return p, nil
}

func (r *memoryFeeRepo) ListPayments(_ context.Context, feeID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payment(nil), r.payments[feeID]...), nil
}

func (r *memoryFeeRepo) ListHolidays(_ context.Context, from, to time.Time) ([]Holiday, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Holiday
	for _, h := range r.holidays {
		if !h.EndDate.Before(from) && !h.StartDate.After(to) {
			out = append(out, h)
		}
	}
	return out, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type memoryAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
	err     error
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err := log.Validate(); err != nil {
		return err
	}
	m.entries = append(m.entries, log)
	return nil
}

func (m *memoryAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}
