package parsers

import (
	"strings"
	"testing"

	"golang-statement-ingestion/internal/models"
)

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102

<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>ACC-42
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000.000[-5:EST]
<DTUSER>20240114
<TRNAMT>-12.34
<FITID>FIT001
<NAME>Coffee Shop
<MEMO>Card purchase
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240116
<TRNAMT>2500.00
<FITID>FIT002
<NAME>Salary
<REFNUM>REF-9
<CURRENCY>
<CURRATE>0.91
<CURSYM>EUR
</CURRENCY>
</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func TestOFXParserParseRecords(t *testing.T) {
	parser, err := NewOFXParser(nil)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	records, stats, err := parser.ParseRecords(strings.NewReader(sampleOFX), "test.ofx")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if stats.RecordsParsed != 2 {
		t.Errorf("expected 2 parsed records in stats, got %d", stats.RecordsParsed)
	}

	first := records[0]
	checks := map[string]string{
		models.FieldTransactionID:   "FIT001",
		models.FieldAccountID:       "ACC-42",
		models.FieldAmount:          "-12.34",
		models.FieldPostedDate:      "20240115",
		models.FieldTransactionDate: "20240114",
		models.FieldDescription:     "Coffee Shop Card purchase",
		models.FieldCurrency:        "USD",
	}
	for field, expected := range checks {
		if value, _ := first.Get(field); value != expected {
			t.Errorf("field %s: expected %q, got %q", field, expected, value)
		}
	}

	// Transaction-level CURRENCY overrides the statement CURDEF.
	second := records[1]
	if value, _ := second.Get(models.FieldCurrency); value != "EUR" {
		t.Errorf("expected currency override EUR, got %q", value)
	}
	if value, _ := second.Get(models.FieldSourceReference); value != "REF-9" {
		t.Errorf("expected source reference REF-9, got %q", value)
	}
	if value, _ := second.Get(models.FieldPostedDate); value != "20240116" {
		t.Errorf("expected posted date 20240116, got %q", value)
	}
}

func TestOFXParserUnterminatedBlock(t *testing.T) {
	input := `<OFX>
<CURDEF>USD
<BANKACCTFROM>
<ACCTID>ACC-1
</BANKACCTFROM>
<STMTTRN>
<FITID>FIT001
<TRNAMT>-5.00
<DTPOSTED>20240115
<STMTTRN>
<FITID>FIT002
<TRNAMT>-7.00
<DTPOSTED>20240116
</STMTTRN>
</OFX>
`

	t.Run("lenient drops the unterminated block", func(t *testing.T) {
		parser, err := NewOFXParser(nil)
		if err != nil {
			t.Fatalf("failed to create parser: %v", err)
		}

		records, stats, err := parser.ParseRecords(strings.NewReader(input), "test.ofx")
		if err != nil {
			t.Fatalf("lenient parse must not fail: %v", err)
		}

		if len(records) != 1 {
			t.Fatalf("expected 1 surviving record, got %d", len(records))
		}
		if value, _ := records[0].Get(models.FieldTransactionID); value != "FIT002" {
			t.Errorf("expected the closed block to survive, got %q", value)
		}
		if stats.ErrorCount != 1 {
			t.Errorf("expected 1 row error for the dropped block, got %d", stats.ErrorCount)
		}
	})

	t.Run("strict fails on the unterminated block", func(t *testing.T) {
		opts := DefaultParserOptions()
		opts.Strict = true

		parser, err := NewOFXParser(opts)
		if err != nil {
			t.Fatalf("failed to create parser: %v", err)
		}

		_, stats, err := parser.ParseRecords(strings.NewReader(input), "test.ofx")
		if err == nil {
			t.Fatal("expected strict mode to fail")
		}
		if !stats.Truncated {
			t.Error("expected stats to be marked truncated")
		}
	})
}

func TestOFXParserTrailingUnterminatedBlock(t *testing.T) {
	input := `<OFX>
<CURDEF>USD
<BANKACCTFROM>
<ACCTID>ACC-1
</BANKACCTFROM>
<STMTTRN>
<FITID>FIT001
<TRNAMT>-5.00
<DTPOSTED>20240115
`

	parser, err := NewOFXParser(nil)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	records, stats, err := parser.ParseRecords(strings.NewReader(input), "test.ofx")
	if err != nil {
		t.Fatalf("lenient parse must not fail: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records from an unterminated trailing block, got %d", len(records))
	}
	if stats.ErrorCount != 1 {
		t.Errorf("expected 1 row error, got %d", stats.ErrorCount)
	}
}

func TestOFXParserEntities(t *testing.T) {
	input := `<OFX>
<CURDEF>USD
<BANKACCTFROM>
<ACCTID>ACC-1
</BANKACCTFROM>
<STMTTRN>
<FITID>FIT001
<TRNAMT>-5.00
<DTPOSTED>20240115
<NAME>Fish &amp; Chips
</STMTTRN>
</OFX>
`

	parser, err := NewOFXParser(nil)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	records, _, err := parser.ParseRecords(strings.NewReader(input), "test.ofx")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if value, _ := records[0].Get(models.FieldDescription); value != "Fish & Chips" {
		t.Errorf("expected decoded entity, got %q", value)
	}
}

func TestSplitTags(t *testing.T) {
	tokens := splitTags("<FITID>ABC<TRNAMT>-1.00")
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].name != "FITID" || tokens[0].value != "ABC" {
		t.Errorf("unexpected first token: %+v", tokens[0])
	}
	if tokens[1].name != "TRNAMT" || tokens[1].value != "-1.00" {
		t.Errorf("unexpected second token: %+v", tokens[1])
	}
}

func TestOFXDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"20240115120000.000[-5:EST]", "20240115"},
		{"20240115", "20240115"},
		{"2024", "2024"},
	}

	for _, tt := range tests {
		if got := ofxDate(tt.input); got != tt.expected {
			t.Errorf("ofxDate(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}
