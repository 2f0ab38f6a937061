// internal/catalog/domain.go
package catalog

// Book is a catalog entry. Available is false exactly while a loan references it.
type Book struct {
	ID        int64  `json:"id" db:"id"`
	Title     string `json:"title" db:"title"`
	Author    string `json:"author" db:"author"`
	Code      string `json:"code" db:"code"`
	Available bool   `json:"available" db:"available"`
}
