package catalog

import "github.com/jogardn/craft-storefront/pkg/models"

// Browser holds one listing view: the fetched products, the active criteria
// and the current page. Any change other than the page sends the view back
// to page 1.
type Browser struct {
	products []models.Product
	criteria Criteria
	page     int
}

func NewBrowser(products []models.Product) *Browser {
	return &Browser{
		products: products,
		criteria: DefaultCriteria(),
		page:     1,
	}
}

func (b *Browser) SetProducts(products []models.Product) {
	b.products = products
	b.page = 1
}

func (b *Browser) SetCriteria(criteria Criteria) {
	b.criteria = criteria
	b.page = 1
}

func (b *Browser) SetSearch(query string) {
	b.criteria.SearchQuery = query
	b.page = 1
}

func (b *Browser) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	b.page = page
}

func (b *Browser) Criteria() Criteria {
	return b.criteria
}

func (b *Browser) CurrentPage() int {
	return b.page
}

func (b *Browser) Result() Page {
	return Apply(b.products, b.criteria, b.page)
}
