// Package remediation turns an explanation into actionable guidance.
package remediation

import (
	"strings"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// MaxSteps caps the advice list.
const MaxSteps = 6

const (
	AdviceLoanSize = "Reduce the requested loan amount or opt for a longer tenure so that EMI is comfortably below 35-40% of your total family income."
	AdviceCredit   = "Improve your credit history / CIBIL by paying EMIs on time, clearing overdues and avoiding cheque bounces for the next 6-12 months before reapplying."
	AdviceIncome   = "Declare all stable income sources and, if possible, add a salaried co-applicant or reduce the loan amount so that income better supports the EMI."
	AdviceBalance  = "Maintain a higher average balance and build a consistent savings pattern in your main account for a few months to show better liquidity."
	AdviceDigital  = "Keep your primary SIM active, avoid frequent number changes and ensure regular salary/business credits into the same account to strengthen behavioural scores."
	AdviceUtil     = "Reduce utilisation on existing credit cards and loans (ideally below 30-40% of limits) before taking additional borrowing."

	AdviceHighEMI       = "Current EMI looks high versus income. Consider a smaller loan amount or longer tenure to bring the EMI-to-income ratio under 40%."
	AdviceWeakBand      = "Your risk score is in a weaker band. Maintain clean repayment behaviour for the next 6-12 months and avoid new unsecured loans before reapplying."
	AdviceLowIncome     = "For this loan size, income is on the lower side. Adding a co-applicant or choosing a smaller ticket size can improve eligibility."
	AdviceLowBalance    = "Increase average balance and avoid frequent full withdrawals so the account shows stable liquidity."
	AdviceLowDigital    = "Use digital channels regularly (UPI, net banking) and keep salary or business credits flowing into one account to build a stronger behavioural profile."
	AdviceHighBorrowing = "Overall borrowing compared to your balances looks high. Pay down existing debt before taking on a new loan."

	AdviceFallback = "Strengthen your profile by maintaining timely repayments, keeping credit utilisation moderate, and ensuring your income comfortably supports the requested EMI."
)

// Rule maps feature-name fragments to one advice string. The first rule with a
// matching fragment wins.
type Rule struct {
	ID        string
	Fragments []string
	Advice    string
}

// DefaultRules is the ordered attribution rule table.
var DefaultRules = []Rule{
	{ID: "loan_size", Fragments: []string{"loanamount", "emi", "income_to_emi"}, Advice: AdviceLoanSize},
	{ID: "credit_history", Fragments: []string{"credit_history", "cibil_proxy"}, Advice: AdviceCredit},
	{ID: "income", Fragments: []string{"applicantincome", "coapplicantincome"}, Advice: AdviceIncome},
	{ID: "liquidity", Fragments: []string{"bank_balance", "total_income"}, Advice: AdviceBalance},
	{ID: "behaviour", Fragments: []string{"mobile_usage_score", "transaction_stability"}, Advice: AdviceDigital},
	{ID: "utilization", Fragments: []string{"credit_utilization"}, Advice: AdviceUtil},
}

// Thresholds are the cutoffs of the direct numeric checks.
type Thresholds struct {
	MaxEMIToIncome  float64
	MinRiskScore    float64
	MinTotalIncome  float64
	MinBankBalance  float64
	MinDigitalScore float64
	MaxUtilization  float64
}

var DefaultThresholds = Thresholds{
	MaxEMIToIncome:  0.4,
	MinRiskScore:    600,
	MinTotalIncome:  40000,
	MinBankBalance:  25000,
	MinDigitalScore: 500,
	MaxUtilization:  5,
}

type Advisor struct {
	Rules      []Rule
	Thresholds Thresholds
}

func NewAdvisor() *Advisor {
	return &Advisor{Rules: DefaultRules, Thresholds: DefaultThresholds}
}

// Advise matches negative attributions against the rule table, then runs the
// threshold checks on the vector. A check only fires when its inputs are
// present, so withheld features never trigger advice.
func (a *Advisor) Advise(v *features.Vector, report types.ExplanationReport) []string {
	var out []string
	add := func(s string) {
		if len(out) >= MaxSteps {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	for _, c := range report.TopNegative {
		if rule, ok := a.match(c.Feature); ok {
			add(rule.Advice)
		}
	}

	if v != nil {
		for _, advice := range a.thresholdAdvice(v) {
			add(advice)
		}
	}

	if len(out) == 0 {
		return []string{AdviceFallback}
	}
	return out
}

func (a *Advisor) match(feature string) (Rule, bool) {
	name := strings.ToLower(feature)
	for _, rule := range a.Rules {
		for _, fragment := range rule.Fragments {
			if strings.Contains(name, fragment) {
				return rule, true
			}
		}
	}
	return Rule{}, false
}

func (a *Advisor) thresholdAdvice(v *features.Vector) []string {
	t := a.Thresholds
	var out []string

	income, hasIncome := totalIncome(v)
	if emi, ok := v.Lookup(features.EMI); ok && hasIncome && income > 0 {
		if emi/max(income, 1) > t.MaxEMIToIncome {
			out = append(out, AdviceHighEMI)
		}
	}

	history, hasHistory := v.Lookup(features.CreditHistory)
	cibil, hasCibil := v.Lookup(features.CibilProxyScore)
	if (hasHistory && history == 0) || (hasCibil && cibil < t.MinRiskScore) {
		out = append(out, AdviceWeakBand)
	}

	if hasIncome && income != 0 && income < t.MinTotalIncome {
		out = append(out, AdviceLowIncome)
	}

	if balance, ok := v.Lookup(features.BankBalance); ok && balance < t.MinBankBalance {
		out = append(out, AdviceLowBalance)
	}

	mobile, hasMobile := v.Lookup(features.MobileUsageScore)
	txn, hasTxn := v.Lookup(features.TransactionStabilityScore)
	if (hasMobile && mobile < t.MinDigitalScore) || (hasTxn && txn < t.MinDigitalScore) {
		out = append(out, AdviceLowDigital)
	}

	if util, ok := v.Lookup(features.CreditUtilization); ok && util > t.MaxUtilization {
		out = append(out, AdviceHighBorrowing)
	}
	return out
}

func totalIncome(v *features.Vector) (float64, bool) {
	if total, ok := v.Lookup(features.TotalIncome); ok {
		return total, true
	}
	applicant, hasApplicant := v.Lookup(features.ApplicantIncome)
	coapplicant, hasCo := v.Lookup(features.CoapplicantIncome)
	return applicant + coapplicant, hasApplicant || hasCo
}
