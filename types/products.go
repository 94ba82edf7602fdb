package types

// Product is a single record from the product API. The API is schema-less
// from our point of view, so records stay as decoded JSON objects.
type Product = map[string]any

// ProductPage is one page of the paginated product API, with the pagination
// metadata taken from the response headers.
type ProductPage struct {
	Data         []Product
	TotalRecords int
	TotalPages   int
	HasNext      bool
	CurrentPage  int
}
