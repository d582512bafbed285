package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mbirkedal/vendorledger/internal/domain/category"
	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

const (
	categorizationSystemMessage = "You are a financial transaction categorization expert."
	identificationSystemMessage = "You are an expert at identifying vendor names from bank transactions."
	enrichmentSystemMessage     = "You are an expert on company information and business operations."
	batchSystemMessage          = "You categorize bank transactions quickly and accurately using comprehensive analysis."
)

const categorizationRules = `
Categories to choose from (MECE - Mutually Exclusive, Collectively Exhaustive):

- vendor_payment: ALL payments to external vendors/suppliers for business purposes
  * Includes: subscriptions, rent, utilities, software, services, goods, contractors
  * Examples: Office rent, LinkedIn subscription, cloud hosting, consulting fees
  * Direction: Usually DEBIT (outgoing)

- salary_payment: Employee compensation and payroll
  * Includes: Salaries, wages, bonuses, benefits
  * Direction: DEBIT (outgoing)

- customer_payment_received: Revenue from customers/clients
  * Includes: Payment for products/services sold, client invoices
  * Direction: CREDIT (incoming)

- tax_payment: All tax-related transactions
  * Includes: VAT payments, income tax, corporate tax, tax refunds
  * Direction: DEBIT (payments) or CREDIT (refunds)

- bank_fee: Bank charges and financial service fees
  * Includes: Transfer fees, account maintenance, currency conversion
  * Note: These are fees to the BANK, not payments to business vendors
  * Direction: Usually DEBIT (outgoing)

- internal_transfer: Transfers between your own accounts
  * Includes: Moving money between business accounts, savings transfers
  * Direction: Either DEBIT or CREDIT depending on account perspective

- not_categorized: Unclear transactions that don't fit above categories
  * Use only when transaction purpose cannot be determined

Analysis Rules:
1. vendor_payment is the broadest category - use for ANY business payment to external parties
2. Bank fees are NOT vendor payments - they're fees for banking services
3. If unsure between categories, use not_categorized rather than guessing
4. Consider transaction direction (debit/credit) to validate category choice`

const identificationRules = `
Your task:
1. Look for company names, business names, or service provider names in ANY of the fields
2. Clean up the name by removing:
   - Transaction IDs, reference numbers
   - Special characters that aren't part of the company name
   - Location information unless it's part of the brand name
   - Payment processor references (unless that IS the vendor)
3. Identify the most recognizable, canonical form of the company name

Common patterns to look for:
- Well-known company names (Google, Microsoft, Stripe, etc.)
- Service provider names followed by description or ID
- Software/SaaS company names
- Professional service providers
- Subscription services

Examples:
- "STRIPE TECHNOLOGY EU" -> "Stripe"
- "Google GSUITE_usetoday.i" -> "Google Workspace"
- "METABASE INC" -> "Metabase"
- "GitHub - GITHUB, INC." -> "GitHub"

Note: Return null for vendor_name only if you cannot identify any business/company name from the transaction details.`

const enrichmentRules = `
Return a JSON object with:
- name: canonical/official company name (e.g., "Mailchimp" not "MAILCHIMP" or "mailchimp")
- nicknames: list of alternative names, abbreviations, or trading names commonly used
- domain: primary website domain (without protocol, e.g., "mailchimp.com")
- default_description: detailed description of what the company does and their main business
- invoicing_country: 2-letter ISO country code where they typically invoice from (consider: many US companies invoice EU customers from Ireland "IE" or Luxembourg "LU" for tax reasons)
- default_currency: 3-letter ISO currency code they typically use for billing
- default_product_type: MUST be either "services" or "goods" - determine based on:
  * "services" = software, consulting, marketing, hosting, subscriptions, professional services, etc.
  * "goods" = physical products, merchandise, hardware, equipment, etc.
- confidence: float between 0 and 1 for overall accuracy of the information

Important notes:
- If you're unsure about specific details, use null for optional fields
- Be especially careful about invoicing country - many tech companies use subsidiaries
- Consider the context: most software companies, platforms, and subscription services = "services"
- Physical retailers, manufacturers, distributors = "goods"

If this appears to be an unknown or very small company, still provide your best analysis based on the name and any context clues.`

const batchRules = `
CATEGORIZATION RULES (MECE - Mutually Exclusive, Collectively Exhaustive):

- vendor_payment: ALL payments to external vendors/suppliers for business purposes
- salary_payment: Employee compensation and payroll payments
- customer_payment_received: Revenue from customers/clients for products/services sold
- tax_payment: All tax-related transactions (VAT, income tax, corporate tax, refunds)
- bank_fee: Bank charges and financial service fees (NOT business vendor payments)
- internal_transfer: Transfers between your own accounts
- not_categorized: Use only when transaction purpose cannot be determined

KEY RULES:
1. vendor_payment is the broadest category - use for ANY business payment to external parties
2. Bank fees are NOT vendor payments - they're fees for banking services
3. Subscriptions, rent, utilities are ALL vendor_payment
4. If unsure, use not_categorized rather than guessing

VENDOR IDENTIFICATION (for vendor_payment):
1. Extract company names from text/sender/message fields
2. Clean names by removing: transaction IDs, reference numbers, special characters, location info (unless brand name)
3. Identify canonical form: "STRIPE TECHNOLOGY EU" -> "Stripe"
4. Set vendor_confidence 0.7-0.9 based on name clarity
5. For non-vendor categories: vendor_name=null, vendor_confidence=0.0`

func buildCategorizationPrompt(txn model.ParsedTransaction) string {
	direction := "CREDIT/Incoming"
	if txn.Amount.IsNegative() {
		direction = "DEBIT/Outgoing"
	}

	return fmt.Sprintf(`As a financial transaction analyst, categorize this bank transaction by analyzing the vendor/company and understanding what the payment represents.

Transaction details:
- Date: %s
- Text: %s
- Message: %s
- Type: %s
- Amount: %s %s (%s)
- Sender: %s
- Receiver: %s
%s

Return a JSON object with:
- category: the most appropriate category from the list above
- confidence: float between 0 and 1 (how certain you are)
- reasoning: detailed explanation of your analysis and decision`,
		txn.Date.Format(time.DateOnly), txn.Text, txn.Message, txn.TransactionType,
		txn.Amount.String(), txn.Currency, direction, txn.Sender, txn.Receiver,
		categorizationRules)
}

func buildIdentificationPrompt(txn model.ParsedTransaction) string {
	return fmt.Sprintf(`As a financial analyst, extract the vendor/company name from this bank transaction by analyzing all available text fields.

Transaction details:
- Text: %s
- Message: %s
- Sender: %s
- Receiver: %s
- Amount: %s %s
%s

Return a JSON object with:
- vendor_name: cleaned, canonical company name (or null if no clear vendor found)
- confidence: float between 0 and 1 (how certain you are this is correct)
- reasoning: explain what you found and how you cleaned/identified the name`,
		txn.Text, txn.Message, txn.Sender, txn.Receiver,
		txn.Amount.String(), txn.Currency, identificationRules)
}

func buildEnrichmentPrompt(vendorName string) string {
	return fmt.Sprintf(`As a business intelligence analyst, research and provide comprehensive information about this vendor/company: %s

Analyze what type of business this is, what they sell/provide, and determine if they primarily deal in services or goods.
%s`, vendorName, enrichmentRules)
}

// batchSlot is the minimal per-transaction payload sent in batch prompts.
type batchSlot struct {
	ID      int    `json:"id"`
	Text    string `json:"text"`
	Amount  string `json:"amount"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func buildBatchPrompt(txns []model.ParsedTransaction) string {
	slots := make([]batchSlot, len(txns))
	for i, txn := range txns {
		direction := "C"
		if txn.Amount.IsNegative() {
			direction = "D"
		}
		slots[i] = batchSlot{
			ID:      i,
			Text:    txn.Text,
			Amount:  txn.Amount.String() + " " + direction,
			Sender:  txn.Sender,
			Message: txn.Message,
		}
	}
	data, _ := json.Marshal(slots)

	return fmt.Sprintf(`As a financial transaction analyst, categorize these %d bank transactions by analyzing the vendor/company and understanding what each payment represents.

Transaction data: %s
Note: D=DEBIT/Outgoing, C=CREDIT/Incoming

Categories: %s
%s

Return JSON: {"results": [{"transaction_id": 0, "category": "vendor_payment", "confidence": 0.9, "vendor_name": "Stripe", "vendor_confidence": 0.8}]}`,
		len(slots), string(data), strings.Join(category.All, ", "), batchRules)
}
