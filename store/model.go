package store

// Field names of the translatable category_description columns, in the
// order they are sent and logged.
const (
	FieldName              = "name"
	FieldDescription       = "description"
	FieldDescriptionBottom = "description_bottom"
	FieldMetaTitle         = "meta_title"
	FieldMetaDescription   = "meta_description"
	FieldMetaKeyword       = "meta_keyword"
	FieldMetaH1            = "meta_h1"
)

// Fields lists every translatable column.
var Fields = []string{
	FieldName,
	FieldDescription,
	FieldDescriptionBottom,
	FieldMetaTitle,
	FieldMetaDescription,
	FieldMetaKeyword,
	FieldMetaH1,
}

// CategoryDescription is one row of <prefix>category_description. The pair
// (CategoryID, LanguageID) is unique.
type CategoryDescription struct {
	CategoryID        int    `gorm:"column:category_id;primaryKey;autoIncrement:false"`
	LanguageID        int    `gorm:"column:language_id;primaryKey;autoIncrement:false"`
	Name              string `gorm:"column:name;size:255;not null"`
	Description       string `gorm:"column:description;type:text;not null"`
	DescriptionBottom string `gorm:"column:description_bottom;type:text;not null"`
	MetaTitle         string `gorm:"column:meta_title;size:255;not null"`
	MetaDescription   string `gorm:"column:meta_description;size:255;not null"`
	MetaKeyword       string `gorm:"column:meta_keyword;size:255;not null"`
	MetaH1            string `gorm:"column:meta_h1;size:255;not null"`
}

// Field returns the value of a translatable column by name.
func (c *CategoryDescription) Field(name string) string {
	if p := c.fieldPtr(name); p != nil {
		return *p
	}
	return ""
}

// SetField assigns a translatable column by name. Unknown names are ignored
// and reported as false.
func (c *CategoryDescription) SetField(name, value string) bool {
	p := c.fieldPtr(name)
	if p == nil {
		return false
	}
	*p = value
	return true
}

func (c *CategoryDescription) fieldPtr(name string) *string {
	switch name {
	case FieldName:
		return &c.Name
	case FieldDescription:
		return &c.Description
	case FieldDescriptionBottom:
		return &c.DescriptionBottom
	case FieldMetaTitle:
		return &c.MetaTitle
	case FieldMetaDescription:
		return &c.MetaDescription
	case FieldMetaKeyword:
		return &c.MetaKeyword
	case FieldMetaH1:
		return &c.MetaH1
	}
	return nil
}

// IsField reports whether name is a translatable column.
func IsField(name string) bool {
	var probe CategoryDescription
	return probe.fieldPtr(name) != nil
}
