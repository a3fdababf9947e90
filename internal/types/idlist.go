package types

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// IDList is a frozen many-to-many relationship, materialized as an ordered
// list of referenced ids instead of live join rows.
type IDList []uuid.UUID

func (l IDList) ToJSON() datatypes.JSON {
	if l == nil {
		l = IDList{}
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}

func ParseIDList(raw datatypes.JSON) IDList {
	if len(raw) == 0 {
		return IDList{}
	}
	var out IDList
	if err := json.Unmarshal(raw, &out); err != nil {
		return IDList{}
	}
	return out
}
