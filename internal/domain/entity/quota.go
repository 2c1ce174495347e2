package entity

import "time"

// Resource recurso gobernado por cuota.
type Resource string

// Recursos con contador used/max.
const (
	ResourceUsers    Resource = "users"
	ResourceOrders   Resource = "orders"
	ResourceEvents   Resource = "events"
	ResourceStorage  Resource = "storage"
	ResourceAPICalls Resource = "api_calls"
)

// Gated informa si el recurso se valida con validateQuota antes de crear entidades.
// storage se contabiliza pero no bloquea creaciones.
func (r Resource) Gated() bool {
	switch r {
	case ResourceUsers, ResourceOrders, ResourceEvents, ResourceAPICalls:
		return true
	}
	return false
}

// Valid informa si el recurso es conocido.
func (r Resource) Valid() bool {
	return r.Gated() || r == ResourceStorage
}

// TenantQuota contadores 1:1 con el tenant. Used nunca es negativo.
type TenantQuota struct {
	TenantID      string
	MaxUsers      int64
	UsedUsers     int64
	MaxOrders     int64
	UsedOrders    int64
	MaxEvents     int64
	UsedEvents    int64
	MaxStorageMB  int64
	UsedStorageMB int64
	MaxAPICalls   int64
	UsedAPICalls  int64
	ResetDate     time.Time
	UpdatedAt     time.Time
}

// Usage devuelve (used, max) del recurso.
func (q *TenantQuota) Usage(r Resource) (used, max int64) {
	switch r {
	case ResourceUsers:
		return q.UsedUsers, q.MaxUsers
	case ResourceOrders:
		return q.UsedOrders, q.MaxOrders
	case ResourceEvents:
		return q.UsedEvents, q.MaxEvents
	case ResourceStorage:
		return q.UsedStorageMB, q.MaxStorageMB
	case ResourceAPICalls:
		return q.UsedAPICalls, q.MaxAPICalls
	}
	return 0, 0
}

// Add suma amount al contador del recurso (uso exclusivo de backends que ya serializan escrituras).
// El contador nunca queda negativo.
func (q *TenantQuota) Add(r Resource, amount int64) {
	bump := func(v *int64) {
		*v += amount
		if *v < 0 {
			*v = 0
		}
	}
	switch r {
	case ResourceUsers:
		bump(&q.UsedUsers)
	case ResourceOrders:
		bump(&q.UsedOrders)
	case ResourceEvents:
		bump(&q.UsedEvents)
	case ResourceStorage:
		bump(&q.UsedStorageMB)
	case ResourceAPICalls:
		bump(&q.UsedAPICalls)
	}
}

// Clone copia la cuota.
func (q *TenantQuota) Clone() *TenantQuota {
	if q == nil {
		return nil
	}
	out := *q
	return &out
}

type planLimits struct {
	users, orders, events, storageMB, apiCalls int64
}

var limitsByPlan = map[string]planLimits{
	PlanFree:       {users: 5, orders: 1000, events: 10, storageMB: 1024, apiCalls: 10000},
	PlanStarter:    {users: 25, orders: 10000, events: 100, storageMB: 10240, apiCalls: 100000},
	PlanPro:        {users: 100, orders: 100000, events: 1000, storageMB: 102400, apiCalls: 1000000},
	PlanEnterprise: {users: 10000, orders: 10000000, events: 100000, storageMB: 1048576, apiCalls: 100000000},
}

// KnownPlan informa si el plan tiene límites definidos.
func KnownPlan(plan string) bool {
	_, ok := limitsByPlan[plan]
	return ok
}

// DefaultQuota cuota inicial del plan, con reinicio de api_calls en now+period.
// Un plan desconocido recibe los límites de free.
func DefaultQuota(tenantID, plan string, now time.Time, period time.Duration) *TenantQuota {
	l, ok := limitsByPlan[plan]
	if !ok {
		l = limitsByPlan[PlanFree]
	}
	return &TenantQuota{
		TenantID:     tenantID,
		MaxUsers:     l.users,
		MaxOrders:    l.orders,
		MaxEvents:    l.events,
		MaxStorageMB: l.storageMB,
		MaxAPICalls:  l.apiCalls,
		ResetDate:    now.Add(period),
		UpdatedAt:    now,
	}
}
