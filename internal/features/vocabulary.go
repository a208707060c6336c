package features

// Kind says how a feature's value is interpreted.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Spec documents one name in the fixed feature vocabulary.
type Spec struct {
	Name        string
	Kind        Kind
	Engineered  bool
	Description string
}

// Raw applicant features accepted on a decision request.
const (
	ApplicantIncome           = "ApplicantIncome"
	CoapplicantIncome         = "CoapplicantIncome"
	LoanAmount                = "LoanAmount"
	LoanAmountTerm            = "Loan_Amount_Term"
	CreditHistory             = "Credit_History"
	Gender                    = "Gender"
	Married                   = "Married"
	Dependents                = "Dependents"
	Education                 = "Education"
	SelfEmployed              = "Self_Employed"
	PropertyArea              = "Property_Area"
	MobileUsageScore          = "mobile_usage_score"
	TransactionStabilityScore = "transaction_stability_score"
	BankBalance               = "bank_balance"
	AvgBalance                = "AvgBalance"
	TransactionScore          = "TransactionScore"
	DigitalFootprint          = "digital_footprint"
	TransactionScoreAlt       = "transaction_score"
)

// Engineered features added by Derive.
const (
	TotalIncome       = "total_income"
	EMI               = "emi"
	IncomeToEMIRatio  = "income_to_emi_ratio"
	CreditUtilization = "credit_utilization"
	StabilityScore    = "stability_score"
	CibilProxyScore   = "cibil_proxy_score"
)

var vocabulary = []Spec{
	{Name: ApplicantIncome, Kind: Numeric, Description: "monthly income of the primary applicant"},
	{Name: CoapplicantIncome, Kind: Numeric, Description: "monthly income of the co-applicant"},
	{Name: LoanAmount, Kind: Numeric, Description: "requested principal"},
	{Name: LoanAmountTerm, Kind: Numeric, Description: "tenure in months"},
	{Name: CreditHistory, Kind: Numeric, Description: "1 when the applicant meets credit history guidelines, else 0"},
	{Name: Gender, Kind: Categorical},
	{Name: Married, Kind: Categorical},
	{Name: Dependents, Kind: Categorical},
	{Name: Education, Kind: Categorical},
	{Name: SelfEmployed, Kind: Categorical},
	{Name: PropertyArea, Kind: Categorical},
	{Name: MobileUsageScore, Kind: Numeric, Description: "behavioural score in [0, 950]"},
	{Name: TransactionStabilityScore, Kind: Numeric, Description: "behavioural score in [0, 950]"},
	{Name: BankBalance, Kind: Numeric, Description: "current balance of the primary account"},
	{Name: AvgBalance, Kind: Numeric},
	{Name: TransactionScore, Kind: Numeric},
	{Name: DigitalFootprint, Kind: Numeric},
	{Name: TransactionScoreAlt, Kind: Numeric},
	{Name: TotalIncome, Kind: Numeric, Engineered: true, Description: "ApplicantIncome + CoapplicantIncome"},
	{Name: EMI, Kind: Numeric, Engineered: true, Description: "LoanAmount / Loan_Amount_Term, term defaults to 1"},
	{Name: IncomeToEMIRatio, Kind: Numeric, Engineered: true, Description: "total_income / (emi + 1), 0 without income"},
	{Name: CreditUtilization, Kind: Numeric, Engineered: true, Description: "LoanAmount / (bank_balance + 50000)"},
	{Name: StabilityScore, Kind: Numeric, Engineered: true, Description: "weighted behavioural and credit history score"},
	{Name: CibilProxyScore, Kind: Numeric, Engineered: true, Description: "proxy bureau score"},
}

var vocabularyIndex = func() map[string]Spec {
	out := make(map[string]Spec, len(vocabulary))
	for _, spec := range vocabulary {
		out[spec.Name] = spec
	}
	return out
}()

// Lookup reports the vocabulary entry for name.
func Lookup(name string) (Spec, bool) {
	spec, ok := vocabularyIndex[name]
	return spec, ok
}
