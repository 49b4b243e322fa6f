package ingest

import (
	"fmt"
	"io"

	"github.com/Veraticus/chargemap/internal/model"
)

// ChargeResult holds the charges read from a CSV and the rows that failed.
type ChargeResult struct {
	Charges []model.Charge
	Errors  []error
	Skipped int
}

// ReadCharges parses charge rows. Blank lines are skipped; rows missing a
// required value are reported in Errors and skipped.
func ReadCharges(r io.Reader, opts Options) (ChargeResult, error) {
	var res ChargeResult
	t, err := newTable(r, opts, "statement_id", "customer_name", "charge_name")
	if err != nil {
		return res, err
	}

	for {
		rec, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", t.line, err))
			continue
		}
		if rec.blank() {
			res.Skipped++
			continue
		}

		// Provider and account identify the statement and are always
		// concrete: a missing or null cell is the empty string.
		c := model.Charge{
			StatementID:       rec.value("statement_id"),
			ProviderName:      rec.value("provider_name"),
			AccountNumber:     rec.value("account_number"),
			CustomerName:      rec.value("customer_name"),
			ChargeName:        rec.value("charge_name"),
			UsageUnit:         rec.optional("usage_unit"),
			ServiceType:       rec.optional("service_type"),
			ChargeMeasurement: rec.optional("charge_measurement"),
			Tariff:            rec.optional("tariff"),
			MeterNumber:       rec.optional("meter_number"),
		}

		switch {
		case c.StatementID == "":
			res.Errors = append(res.Errors, fmt.Errorf("line %d: statement_id is empty", t.line))
			continue
		case c.CustomerName == "":
			res.Errors = append(res.Errors, fmt.Errorf("line %d: customer_name is empty", t.line))
			continue
		case c.ChargeName == "":
			res.Errors = append(res.Errors, fmt.Errorf("line %d: charge_name is empty", t.line))
			continue
		}

		res.Charges = append(res.Charges, c)
	}
	return res, nil
}
