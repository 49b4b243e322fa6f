package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCharges(t *testing.T) {
	input := `statement_id,provider_name,account_number,customer_name,charge_name,usage_unit,meter_number
s1,Metro Power,A1,Acme,Delivery Charge,kWh,
s1,Metro Power,A1,Acme,Sales Tax,,M-1
`
	res, err := ReadCharges(strings.NewReader(input), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Charges, 2)

	first := res.Charges[0]
	assert.Equal(t, "s1", first.StatementID)
	assert.Equal(t, "Metro Power", first.ProviderName)
	assert.Equal(t, "Acme", first.CustomerName)
	assert.Equal(t, "Delivery Charge", first.ChargeName)
	require.NotNil(t, first.UsageUnit)
	assert.Equal(t, "kWh", *first.UsageUnit)
	assert.Nil(t, first.MeterNumber, "empty cell is unset by default")
	assert.Nil(t, first.Tariff, "missing column is unset")

	require.NotNil(t, res.Charges[1].MeterNumber)
	assert.Equal(t, "M-1", *res.Charges[1].MeterNumber)
}

func TestReadCharges_DisplayHeaders(t *testing.T) {
	input := "\ufeffStatement ID,Customer name,Charge name,Charge measurement,Service-Type\n" +
		"s9,Globex,Supply,Therms,gas\n"

	res, err := ReadCharges(strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, res.Charges, 1)
	c := res.Charges[0]
	assert.Equal(t, "s9", c.StatementID)
	assert.Equal(t, "Globex", c.CustomerName)
	require.NotNil(t, c.ChargeMeasurement)
	assert.Equal(t, "Therms", *c.ChargeMeasurement)
	require.NotNil(t, c.ServiceType)
	assert.Equal(t, "gas", *c.ServiceType)
}

func TestReadCharges_IdentityFieldsAreConcrete(t *testing.T) {
	input := `statement_id,provider_name,customer_name,charge_name,usage_unit
s1,,Acme,Fee,
s2,NULL,Acme,Fee,kWh
`
	res, err := ReadCharges(strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, res.Charges, 2)

	assert.Equal(t, "", res.Charges[0].ProviderName)
	assert.Equal(t, "", res.Charges[0].AccountNumber, "missing column reads as empty")
	assert.Nil(t, res.Charges[0].UsageUnit, "optional attributes stay unset")

	res, err = ReadCharges(strings.NewReader(input), Options{NullValue: "NULL"})
	require.NoError(t, err)
	require.Len(t, res.Charges, 2)
	assert.Equal(t, "", res.Charges[1].ProviderName, "null token on an identity field reads as empty")
	require.NotNil(t, res.Charges[1].UsageUnit)
	assert.Equal(t, "kWh", *res.Charges[1].UsageUnit)
}

func TestReadCharges_NullToken(t *testing.T) {
	input := `statement_id,customer_name,charge_name,usage_unit,tariff
s1,Acme,Fee,,NULL
`
	res, err := ReadCharges(strings.NewReader(input), Options{NullValue: "NULL"})
	require.NoError(t, err)
	require.Len(t, res.Charges, 1)

	c := res.Charges[0]
	require.NotNil(t, c.UsageUnit, "empty cell is a concrete value when a null token is configured")
	assert.Empty(t, *c.UsageUnit)
	assert.Nil(t, c.Tariff)
}

func TestReadCharges_RowErrors(t *testing.T) {
	input := `statement_id,customer_name,charge_name
s1,Acme,Fee
s2,,Fee
,Acme,Fee
s3,Acme,
,,
s4,Acme,Tax
`
	res, err := ReadCharges(strings.NewReader(input), Options{})
	require.NoError(t, err)
	assert.Len(t, res.Charges, 2)
	assert.Len(t, res.Errors, 3)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, res.Errors[0].Error(), "line 3")
}

func TestReadCharges_HeaderProblems(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty input", input: "", wantErr: "header row required"},
		{name: "missing column", input: "statement_id,customer_name\ns1,Acme\n", wantErr: "charge_name"},
		{name: "duplicate column", input: "charge_name,Charge name,statement_id,customer_name\n", wantErr: "duplicate column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCharges(strings.NewReader(tt.input), Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Charge name":         "charge_name",
		" CHARGE_NAME ":       "charge_name",
		"charge-name":         "charge_name",
		"Priority":            "priority_order",
		"Charge Name Mapping": "charge_name_mapping",
		"Pattern":             "charge_name_mapping",
		"Raw charge name":     "raw_charge_name",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeHeader(in), in)
	}
}
