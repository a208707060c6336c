package features

// Derive adds the engineered features to v. Caller-supplied values are never
// overwritten; missing numeric inputs count as 0 and a missing or zero term
// counts as 1.
func Derive(v *Vector) *Vector {
	applicant := v.Num(ApplicantIncome)
	coapplicant := v.Num(CoapplicantIncome)
	loan := v.Num(LoanAmount)
	term := v.Num(LoanAmountTerm)
	if term == 0 {
		term = 1
	}
	history := v.Num(CreditHistory)
	mobile := v.Num(MobileUsageScore)
	txn := v.Num(TransactionStabilityScore)
	balance := v.Num(BankBalance)

	totalIncome := applicant + coapplicant
	v.SetDefault(TotalIncome, Number(totalIncome), ApplicantIncome, CoapplicantIncome)
	// Later formulas read whichever total/emi ended up in the vector.
	totalIncome = v.Num(TotalIncome)

	v.SetDefault(EMI, Number(loan/term), LoanAmount, LoanAmountTerm)
	emi := v.Num(EMI)

	ratio := 0.0
	if totalIncome != 0 {
		ratio = totalIncome / (emi + 1)
	}
	v.SetDefault(IncomeToEMIRatio, Number(ratio), ApplicantIncome, CoapplicantIncome, LoanAmount, LoanAmountTerm)

	utilization := 0.0
	if denom := balance + 50000; denom != 0 {
		utilization = loan / denom
	}
	v.SetDefault(CreditUtilization, Number(utilization), LoanAmount, BankBalance)

	stability := 0.4*(txn/950) + 0.3*(mobile/950) + 0.3*history
	v.SetDefault(StabilityScore, Number(stability), TransactionStabilityScore, MobileUsageScore, CreditHistory)

	cibil := (0.35*txn + 0.25*mobile + 0.2*totalIncome + 0.2*(history*900)) / 2
	v.SetDefault(CibilProxyScore, Number(cibil),
		TransactionStabilityScore, MobileUsageScore, ApplicantIncome, CoapplicantIncome, CreditHistory)

	return v
}
