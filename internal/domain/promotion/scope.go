package promotion

import "slices"

// Scope selectors as stored in the applies_to column.
const (
	AppliesToAllProducts      = "all_products"
	AppliesToCategory         = "category"
	AppliesToTag              = "tag"
	AppliesToSpecificProducts = "specific_products"
)

// Target is the product a scope is matched against.
type Target struct {
	ProductCode  string
	MainCategory string
	Subcategory  string
	Tags         []string
}

// Scope selects the products a promotion can discount. The set of
// implementations is closed: AllProducts, CategoryScope, TagScope,
// ProductScope and UnknownScope.
type Scope interface {
	// AppliesTo returns the stored selector name.
	AppliesTo() string
	// Matches reports whether the target product is covered.
	Matches(t Target) bool
	// Priority orders scopes: lower values are tried first.
	Priority() int

	sealed()
}

// AllProducts covers every product.
type AllProducts struct{}

func (AllProducts) AppliesTo() string { return AppliesToAllProducts }
func (AllProducts) Matches(Target) bool { return true }
func (AllProducts) Priority() int { return 4 }
func (AllProducts) sealed() {}

// CategoryScope covers products whose main category or subcategory equals Slug.
type CategoryScope struct {
	Slug string
}

func (CategoryScope) AppliesTo() string { return AppliesToCategory }
func (s CategoryScope) Matches(t Target) bool {
	return s.Slug == t.MainCategory || s.Slug == t.Subcategory
}
func (CategoryScope) Priority() int { return 2 }
func (CategoryScope) sealed() {}

// TagScope covers products carrying Slug among their tags.
type TagScope struct {
	Slug string
}

func (TagScope) AppliesTo() string { return AppliesToTag }
func (s TagScope) Matches(t Target) bool { return slices.Contains(t.Tags, s.Slug) }
func (TagScope) Priority() int { return 3 }
func (TagScope) sealed() {}

// ProductScope covers an explicit list of product codes.
type ProductScope struct {
	Codes map[string]struct{}
}

// NewProductScope builds a ProductScope from a list of codes.
func NewProductScope(codes []string) ProductScope {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return ProductScope{Codes: set}
}

func (ProductScope) AppliesTo() string { return AppliesToSpecificProducts }
func (s ProductScope) Matches(t Target) bool {
	_, ok := s.Codes[t.ProductCode]
	return ok
}
func (ProductScope) Priority() int { return 1 }
func (ProductScope) sealed() {}

// CodeList returns the covered codes in sorted order.
func (s ProductScope) CodeList() []string {
	out := make([]string, 0, len(s.Codes))
	for c := range s.Codes {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// UnknownScope keeps an unrecognised selector. It sorts last and matches nothing.
type UnknownScope struct {
	Raw string
}

func (s UnknownScope) AppliesTo() string { return s.Raw }
func (UnknownScope) Matches(Target) bool { return false }
func (UnknownScope) Priority() int { return 5 }
func (UnknownScope) sealed() {}

// ParseScope builds the Scope for a stored applies_to value and its parameters.
func ParseScope(appliesTo, categorySlug, tagSlug string, productCodes []string) Scope {
	switch appliesTo {
	case AppliesToAllProducts:
		return AllProducts{}
	case AppliesToCategory:
		return CategoryScope{Slug: categorySlug}
	case AppliesToTag:
		return TagScope{Slug: tagSlug}
	case AppliesToSpecificProducts:
		return NewProductScope(productCodes)
	default:
		return UnknownScope{Raw: appliesTo}
	}
}

// ScopeParams is the inverse of ParseScope.
func ScopeParams(s Scope) (appliesTo, categorySlug, tagSlug string, productCodes []string) {
	switch s := s.(type) {
	case CategoryScope:
		return s.AppliesTo(), s.Slug, "", nil
	case TagScope:
		return s.AppliesTo(), "", s.Slug, nil
	case ProductScope:
		return s.AppliesTo(), "", "", s.CodeList()
	case nil:
		return "", "", "", nil
	default:
		return s.AppliesTo(), "", "", nil
	}
}

// scopePriority tolerates a nil scope, which sorts with the unknown ones.
func scopePriority(s Scope) int {
	if s == nil {
		return 5
	}
	return s.Priority()
}

func scopeMatches(s Scope, t Target) bool {
	return s != nil && s.Matches(t)
}
