package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Order is a snapshot of a purchased product appended to an account.
type Order struct {
	// ID identifies the purchased product in the catalog.
	ID ProductID `json:"id" dynamodbav:"id"`

	// Name is the product name at the time of purchase.
	Name string `json:"name" dynamodbav:"name"`

	// Price is expressed in the smallest currency unit.
	Price int64 `json:"price" dynamodbav:"price"`

	Image       string `json:"image,omitempty" dynamodbav:"image,omitempty"`
	Description string `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Category    string `json:"category,omitempty" dynamodbav:"category,omitempty"`

	// PurchaseID is assigned by the server for every append.
	PurchaseID string `json:"purchaseId,omitempty" dynamodbav:"purchaseId,omitempty"`

	// PurchasedAt is the server time of the append.
	PurchasedAt time.Time `json:"purchasedAt" dynamodbav:"purchasedAt"`
}

// ProductID is a product identifier that clients may send either as a JSON
// number or as a JSON string. It remembers which one it was, so an id is
// always written back in the form it arrived in.
type ProductID struct {
	value   string
	numeric bool
}

// NumericProductID returns an id written as a JSON number.
func NumericProductID(n int64) ProductID {
	return ProductID{value: strconv.FormatInt(n, 10), numeric: true}
}

// StringProductID returns an id written as a JSON string.
func StringProductID(s string) ProductID {
	return ProductID{value: s}
}

func (id ProductID) String() string { return id.value }

// IsNumeric reports whether the id is written as a JSON number.
func (id ProductID) IsNumeric() bool { return id.numeric }

// IsZero reports whether the id is empty or blank.
func (id ProductID) IsZero() bool { return strings.TrimSpace(id.value) == "" }

// MarshalJSON implements json.Marshaler.
func (id ProductID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ProductID{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringProductID(s)
		return nil
	case isJSONNumber(data):
		*id = ProductID{value: string(data), numeric: true}
		return nil
	default:
		return &json.UnmarshalTypeError{Value: string(data), Type: reflect.TypeOf(ProductID{})}
	}
}

// MarshalDynamoDBAttributeValue stores numeric ids as N and the rest as S.
func (id ProductID) MarshalDynamoDBAttributeValue() (ddbtypes.AttributeValue, error) {
	if id.numeric {
		return &ddbtypes.AttributeValueMemberN{Value: id.value}, nil
	}
	return &ddbtypes.AttributeValueMemberS{Value: id.value}, nil
}

// UnmarshalDynamoDBAttributeValue reads ids written by MarshalDynamoDBAttributeValue.
func (id *ProductID) UnmarshalDynamoDBAttributeValue(av ddbtypes.AttributeValue) error {
	switch v := av.(type) {
	case *ddbtypes.AttributeValueMemberN:
		*id = ProductID{value: v.Value, numeric: true}
	case *ddbtypes.AttributeValueMemberS:
		*id = StringProductID(v.Value)
	case *ddbtypes.AttributeValueMemberNULL:
		*id = ProductID{}
	default:
		return fmt.Errorf("product id: unsupported attribute type %T", av)
	}
	return nil
}

func isJSONNumber(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	c := data[0]
	if c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid(data)
}

// OrderPlacedEvent is published after an order has been appended.
type OrderPlacedEvent struct {
	TenantID   string    `json:"tenantID"`
	UserID     string    `json:"userID"`
	Order      Order     `json:"order"`
	OrderCount int       `json:"orderCount"`
	OccurredAt time.Time `json:"occurredAt"`
}
