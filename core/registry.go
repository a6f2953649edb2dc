package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type MethodFamily string

const (
	MethodFamilyCard         MethodFamily = "card"
	MethodFamilyBankTransfer MethodFamily = "bank_transfer"
	MethodFamilyDirectDebit  MethodFamily = "direct_debit"
	MethodFamilyVoucher      MethodFamily = "voucher"
	MethodFamilyWallet       MethodFamily = "wallet"
	MethodFamilyGeneric      MethodFamily = "generic"
)

// MethodDescriptor classifies a gateway payment-method type code so result
// processing can pick family-specific behavior (Pending comments, voucher
// presentation). Prefix descriptors match any type sharing the code prefix,
// covering families like bankTransfer_IBAN, bankTransfer_NL.
type MethodDescriptor struct {
	Code   string
	Family MethodFamily
	Prefix bool
}

type MethodRegistry struct {
	mu       sync.RWMutex
	exact    map[string]MethodDescriptor
	prefixes []MethodDescriptor
}

func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{exact: make(map[string]MethodDescriptor)}
}

// DefaultMethodRegistry seeds the method families the processor needs out
// of the box. Hosts register additional descriptors for custom methods.
func DefaultMethodRegistry() *MethodRegistry {
	registry := NewMethodRegistry()
	seeds := []MethodDescriptor{
		{Code: "scheme", Family: MethodFamilyCard},
		{Code: "bankTransfer", Family: MethodFamilyBankTransfer, Prefix: true},
		{Code: "sepadirectdebit", Family: MethodFamilyDirectDebit},
		{Code: "ach", Family: MethodFamilyDirectDebit},
		{Code: "multibanco", Family: MethodFamilyVoucher},
		{Code: "alipay", Family: MethodFamilyWallet},
		{Code: "alipay_hk", Family: MethodFamilyWallet},
	}
	for _, seed := range seeds {
		if err := registry.Register(seed); err != nil {
			panic(fmt.Sprintf("core: seed method descriptor: %v", err))
		}
	}
	return registry
}

func (r *MethodRegistry) Register(desc MethodDescriptor) error {
	if r == nil {
		return fmt.Errorf("core: method registry is nil")
	}
	code := strings.TrimSpace(desc.Code)
	if code == "" {
		return fmt.Errorf("core: method code is required")
	}
	if strings.TrimSpace(string(desc.Family)) == "" {
		desc.Family = MethodFamilyGeneric
	}
	desc.Code = code
	r.mu.Lock()
	defer r.mu.Unlock()
	if desc.Prefix {
		for _, existing := range r.prefixes {
			if existing.Code == code {
				return fmt.Errorf("core: method prefix already registered: %s", code)
			}
		}
		r.prefixes = append(r.prefixes, desc)
		return nil
	}
	if _, exists := r.exact[code]; exists {
		return fmt.Errorf("core: method already registered: %s", code)
	}
	r.exact[code] = desc
	return nil
}

// Lookup resolves a method type code: exact matches win, then the longest
// registered prefix.
func (r *MethodRegistry) Lookup(methodType string) (MethodDescriptor, bool) {
	if r == nil {
		return MethodDescriptor{}, false
	}
	code := strings.TrimSpace(methodType)
	if code == "" {
		return MethodDescriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if desc, ok := r.exact[code]; ok {
		return desc, true
	}
	var best MethodDescriptor
	found := false
	for _, desc := range r.prefixes {
		if !strings.HasPrefix(code, desc.Code) {
			continue
		}
		if !found || len(desc.Code) > len(best.Code) {
			best = desc
			found = true
		}
	}
	return best, found
}

func (r *MethodRegistry) List() []MethodDescriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	descriptors := make([]MethodDescriptor, 0, len(r.exact)+len(r.prefixes))
	for _, desc := range r.exact {
		descriptors = append(descriptors, desc)
	}
	descriptors = append(descriptors, r.prefixes...)
	r.mu.RUnlock()
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Code < descriptors[j].Code
	})
	return descriptors
}
