// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package importer

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"catalogadmin/internal/models"
)

// rowInput is the scalar part of a canonical row before conversion.
type rowInput struct {
	SKU           string `json:"sku" validate:"required,max=100"`
	Name          string `json:"name" validate:"required,max=255"`
	Description   string `json:"description" validate:"max=10000"`
	Price         string `json:"price" validate:"omitempty,numeric"`
	Cost          string `json:"cost" validate:"omitempty,numeric"`
	StockQuantity string `json:"stock_quantity" validate:"omitempty,number"`
	Vendor        string `json:"vendor" validate:"max=255"`
	Status        string `json:"status" validate:"omitempty,oneof=active inactive draft"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var moneyNoise = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

// parseProduct validates the scalar fields of a canonical row and converts
// them into a product without categories.
func (e *Engine) parseProduct(fields map[string]string) (models.Product, error) {
	in := rowInput{
		SKU:           fields[FieldSKU],
		Name:          fields[FieldName],
		Description:   fields[FieldDescription],
		Price:         moneyNoise.Replace(fields[FieldPrice]),
		Cost:          moneyNoise.Replace(fields[FieldCost]),
		StockQuantity: fields[FieldStockQuantity],
		Vendor:        fields[FieldVendor],
		Status:        strings.ToLower(fields[FieldStatus]),
	}
	if err := e.validate.Struct(in); err != nil {
		return models.Product{}, err
	}

	p := models.Product{
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		Vendor:      in.Vendor,
		Status:      models.ProductStatus(in.Status),
	}
	if p.Status == "" {
		p.Status = models.ProductStatusActive
	}

	var err error
	if p.Price, err = parseMoney("price", in.Price); err != nil {
		return models.Product{}, err
	}
	if p.Cost, err = parseMoney("cost", in.Cost); err != nil {
		return models.Product{}, err
	}
	if in.StockQuantity != "" {
		if p.StockQuantity, err = strconv.Atoi(in.StockQuantity); err != nil {
			return models.Product{}, fmt.Errorf("stock_quantity %q is out of range", in.StockQuantity)
		}
	}
	return p, nil
}

func parseMoney(field, s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s must be a number", field)
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%s must not be negative", field)
	}
	return decimal.NewNullDecimal(d.Round(2)), nil
}

// describeError renders validation failures as a short sentence list.
func describeError(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, describeField(fe))
	}
	return strings.Join(msgs, "; ")
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Sprintf("%s %q must be a number", fe.Field(), fe.Value())
	case "number":
		return fmt.Sprintf("%s %q must be a whole number", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s %q must be one of: %s", fe.Field(), fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}
