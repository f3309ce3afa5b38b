package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"gorm.io/gorm"
)

// cleanupTrigger removes link and checksum rows that referenced a deleted storefront record.
type cleanupTrigger struct {
	table      string
	statements []string
}

type sqlDialect struct {
	trueLiteral  string
	falseLiteral string
}

func dialectFor(driver string) sqlDialect {
	if driver == DriverPostgres {
		return sqlDialect{trueLiteral: "TRUE", falseLiteral: "FALSE"}
	}
	return sqlDialect{trueLiteral: "1", falseLiteral: "0"}
}

// likeLiteral escapes the LIKE wildcards of a fixed pattern fragment and quotes it.
func likeLiteral(fragment string) string {
	escaped := strings.ReplaceAll(fragment, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "_", `\_`)
	escaped = strings.ReplaceAll(escaped, "%", `\%`)
	return "'" + escaped + "'"
}

// ownerImagePattern matches composite image ids of any attachment owned by OLD.id.
func ownerImagePattern(prefix compositeid.Prefix) string {
	return likeLiteral(string(prefix)+compositeid.Delimiter) + " || '%' || " +
		likeLiteral(compositeid.Delimiter) + " || CAST(OLD.id AS TEXT)"
}

// attachmentImagePattern matches composite image ids of attachment OLD.id on any owner.
func attachmentImagePattern(prefix compositeid.Prefix) string {
	return likeLiteral(string(prefix)+compositeid.Delimiter) + " || CAST(OLD.id AS TEXT) || " +
		likeLiteral(compositeid.Delimiter) + " || '%'"
}

func deleteImageLinks(relation linking.RelationType, pattern string) string {
	return "DELETE FROM " + linking.TableName(linking.TypeImage) +
		" WHERE relation_type = '" + string(relation) + "' AND endpoint_id LIKE " + pattern + ` ESCAPE '\'`
}

func deleteNumericLink(linkType linking.LinkType) string {
	return "DELETE FROM " + linking.TableName(linkType) + " WHERE endpoint_id = OLD.id"
}

func cleanupTriggers(dialect sqlDialect) []cleanupTrigger {
	customers := linking.TableName(linking.TypeCustomer)
	guestPrefix := string(compositeid.PrefixGuest) + compositeid.Delimiter
	return []cleanupTrigger{
		{table: "wc_products", statements: []string{
			deleteNumericLink(linking.TypeProduct),
			"DELETE FROM product_checksums WHERE product_id = CAST(OLD.id AS TEXT)",
			deleteImageLinks(linking.RelationProduct, ownerImagePattern(compositeid.PrefixProductImage)),
		}},
		{table: "wc_categories", statements: []string{
			deleteNumericLink(linking.TypeCategory),
			deleteImageLinks(linking.RelationCategory, ownerImagePattern(compositeid.PrefixCategoryImage)),
		}},
		{table: "wc_customers", statements: []string{
			"DELETE FROM " + customers + " WHERE endpoint_id = CAST(OLD.id AS TEXT) AND is_guest = " + dialect.falseLiteral,
		}},
		{table: "wc_orders", statements: []string{
			deleteNumericLink(linking.TypeCustomerOrder),
			deleteNumericLink(linking.TypePayment),
			"DELETE FROM " + customers + " WHERE endpoint_id = '" + guestPrefix + "' || CAST(OLD.id AS TEXT) AND is_guest = " + dialect.trueLiteral,
		}},
		{table: "wc_attachments", statements: []string{
			deleteImageLinks(linking.RelationProduct, attachmentImagePattern(compositeid.PrefixProductImage)),
			deleteImageLinks(linking.RelationCategory, attachmentImagePattern(compositeid.PrefixCategoryImage)),
		}},
		{table: "wc_tax_rates", statements: []string{deleteNumericLink(linking.TypeTaxRate)}},
		{table: "wc_shipping_classes", statements: []string{deleteNumericLink(linking.TypeShippingClass)}},
	}
}

func triggerName(table string) string {
	return "erplink_unlink_" + table
}

func sqliteTriggerDDL(trigger cleanupTrigger) []string {
	var body strings.Builder
	for _, statement := range trigger.statements {
		body.WriteString("\t")
		body.WriteString(statement)
		body.WriteString(";\n")
	}
	return []string{
		fmt.Sprintf("CREATE TRIGGER IF NOT EXISTS %s AFTER DELETE ON %s FOR EACH ROW BEGIN\n%sEND",
			triggerName(trigger.table), trigger.table, body.String()),
	}
}

func postgresTriggerDDL(trigger cleanupTrigger) []string {
	var body strings.Builder
	for _, statement := range trigger.statements {
		body.WriteString("\t")
		body.WriteString(statement)
		body.WriteString(";\n")
	}
	name := triggerName(trigger.table)
	return []string{
		"CREATE OR REPLACE FUNCTION " + name + "() RETURNS trigger AS $$\nBEGIN\n" + body.String() +
			"\tRETURN OLD;\nEND;\n$$ LANGUAGE plpgsql",
		"DROP TRIGGER IF EXISTS " + name + " ON " + trigger.table,
		"CREATE TRIGGER " + name + " AFTER DELETE ON " + trigger.table + " FOR EACH ROW EXECUTE FUNCTION " + name + "()",
	}
}

func installCleanupTriggers(tx *gorm.DB, driver string) error {
	for _, trigger := range cleanupTriggers(dialectFor(driver)) {
		statements := sqliteTriggerDDL(trigger)
		if driver == DriverPostgres {
			statements = postgresTriggerDDL(trigger)
		}
		for _, statement := range statements {
			if err := tx.Exec(statement).Error; err != nil {
				return fmt.Errorf("install trigger on %s: %w", trigger.table, err)
			}
		}
	}
	return nil
}
