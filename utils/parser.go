package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/types"
	"gopkg.in/yaml.v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Wire field names of a merchant QR payload.
const (
	fieldType     = "type"
	fieldMerchant = "merchant"
	fieldCurrency = "currency"
	fieldAmount   = "amount"
	fieldAdminFee = "adminFee"
	fieldTotal    = "total"
)

// Static codes may carry the numeric fields, but they are dropped.
var allowedFields = map[types.PaymentKind]map[string]bool{
	types.KindStatic: {
		fieldType: true, fieldMerchant: true, fieldCurrency: true,
		fieldAmount: true, fieldAdminFee: true, fieldTotal: true,
	},
	types.KindDynamic: {
		fieldType: true, fieldMerchant: true, fieldCurrency: true,
		fieldAmount: true, fieldAdminFee: true, fieldTotal: true,
	},
}

// ParsePaymentRequest parses and strictly validates a scanned QR payload.
//
// The payload is either a JSON object or an http(s) URL whose query string
// holds the same fields. Anything else is malformed. The function is pure.
func ParsePaymentRequest(raw string) (*types.PaymentRequest, error) {
	raw = strings.TrimSpace(raw)

	var (
		fields map[string]string
		err    error
	)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		fields, err = decodeURLFields(raw)
	} else {
		fields, err = decodeJSONFields(raw)
	}
	if err != nil {
		return nil, err
	}

	kind := types.PaymentKind(fields[fieldType])
	allowed, ok := allowedFields[kind]
	if !ok {
		return nil, &types.PaymentError{
			Code:    types.CodeUnknownKind,
			Message: fmt.Sprintf("unknown payment kind %q", fields[fieldType]),
			Data:    fields[fieldType],
		}
	}

	if unexpected := unexpectedFields(fields, allowed); len(unexpected) > 0 {
		return nil, &types.PaymentError{
			Code:    types.CodeUnexpectedField,
			Message: fmt.Sprintf("unexpected field(s) for %s payload: %s", kind, strings.Join(unexpected, ", ")),
			Data:    unexpected,
		}
	}

	req := &types.PaymentRequest{
		Kind:       kind,
		MerchantID: fields[fieldMerchant],
		Currency:   fields[fieldCurrency],
	}

	if req.MerchantID == "" {
		return nil, missingField(fieldMerchant)
	}
	if req.Currency == "" {
		return nil, missingField(fieldCurrency)
	}
	if !types.IsSupportedCurrency(req.Currency) {
		return nil, &types.PaymentError{
			Code:    types.CodeUnsupportedCurrency,
			Message: fmt.Sprintf("unsupported currency %q", req.Currency),
			Data:    req.Currency,
		}
	}

	if kind == types.KindStatic {
		return req, nil
	}

	for _, name := range []string{fieldAmount, fieldAdminFee, fieldTotal} {
		v, present := fields[name]
		if !present || v == "" {
			return nil, missingField(name)
		}
		if _, err := ValidateAmount(v); err != nil {
			return nil, &types.PaymentError{
				Code:    types.CodeInvalidAmount,
				Message: fmt.Sprintf("%s: %v", name, err),
				Data:    name,
			}
		}
	}

	req.Amount = fields[fieldAmount]
	req.AdminFee = fields[fieldAdminFee]
	req.Total = fields[fieldTotal]

	return req, nil
}

// decodeJSONFields walks the object token by token so a repeated key is
// rejected instead of silently overwriting the first value.
func decodeJSONFields(raw string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, malformed("payload is not a JSON object")
	}

	fields := make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed("payload is not a JSON object")
		}
		k, _ := tok.(string)
		if _, dup := fields[k]; dup {
			return nil, malformed(fmt.Sprintf("field %q repeated", k))
		}

		tok, err = dec.Token()
		if err != nil {
			return nil, malformed("payload is not a JSON object")
		}
		s, ok := tok.(string)
		if !ok {
			return nil, malformed(fmt.Sprintf("field %q must be a string", k))
		}
		fields[k] = s
	}

	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, malformed("payload is not a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, malformed("unexpected data after JSON object")
	}
	return fields, nil
}

func decodeURLFields(raw string) (map[string]string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, malformed("payload is not a valid URL")
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, malformed("payload URL has an invalid query")
	}

	fields := make(map[string]string, len(query))
	for k, vs := range query {
		if len(vs) != 1 {
			return nil, malformed(fmt.Sprintf("field %q repeated", k))
		}
		fields[k] = vs[0]
	}
	return fields, nil
}

func unexpectedFields(fields map[string]string, allowed map[string]bool) []string {
	var out []string
	for k := range fields {
		if !allowed[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func malformed(msg string) error {
	return &types.PaymentError{Code: types.CodeMalformedPayload, Message: msg}
}

func missingField(name string) error {
	return &types.PaymentError{
		Code:    types.CodeMissingField,
		Message: fmt.Sprintf("field %q is required", name),
		Data:    name,
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// ParseConfig parses and validates Config from YAML (or JSON).
//
// ${VAR} references are expanded from the environment before decoding;
// ${VAR:default} falls back to default when VAR is unset.
func ParseConfig(data []byte) (*types.Config, error) {
	expanded, err := expandEnv(string(data))
	if err != nil {
		return nil, &types.PaymentError{
			Code:    types.CodeConfigError,
			Message: err.Error(),
		}
	}

	var config types.Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, &types.PaymentError{
			Code:    types.CodeConfigError,
			Message: fmt.Sprintf("failed to parse config: %v", err),
		}
	}

	if err := validate.Struct(&config); err != nil {
		return nil, &types.PaymentError{
			Code:    types.CodeConfigError,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	for currency, bySymbol := range config.Rates {
		for symbol, rate := range bySymbol {
			d, err := decimal.NewFromString(rate)
			if err != nil || !d.IsPositive() {
				return nil, &types.PaymentError{
					Code:    types.CodeConfigError,
					Message: fmt.Sprintf("rate %s/%s must be a positive decimal, got %q", currency, symbol, rate),
				}
			}
		}
	}

	return &config, nil
}

// ValidateToken validates a token definition using struct tags.
func ValidateToken(token types.Token) error {
	if err := validate.Struct(&token); err != nil {
		return &types.PaymentError{
			Code:    types.CodeInvalidAddress,
			Message: fmt.Sprintf("invalid token %s: %v", token.Symbol, err),
			Data:    token.Address,
		}
	}
	return nil
}

func expandEnv(s string) (string, error) {
	var missing []string
	out := envPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok {
			return v
		}
		if strings.Contains(m, ":") {
			return parts[2]
		}
		missing = append(missing, parts[1])
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variable(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}
