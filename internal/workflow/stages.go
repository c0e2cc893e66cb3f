package workflow

// Tool names a stage may request. The engine resolves them before
// prompting and injects their output into the stage prompt.
const (
	ToolReadDocument = "read_document"
	ToolWebSearch    = "web_search"
)

// Stage is one step of the analysis pipeline. Stages run sequentially;
// each stage receives the output of all prior stages as context.
type Stage struct {
	Name           string
	Agent          Agent
	Description    string
	ExpectedOutput string
	Tools          []string
}

// DefaultQuery is used when an upload carries no analysis query.
const DefaultQuery = "Provide a comprehensive analysis of this financial document, including investment recommendations and a risk assessment."

var triageAgent = Agent{
	Role: "Document Triage Specialist",
	Goal: "Accurately determine if an uploaded document is a financial report. If not, identify what type of document it is.",
	Backstory: "You are a meticulous analyst with a knack for quickly classifying documents. " +
		"Your primary function is to act as the first line of defense, ensuring that only relevant " +
		"financial documents proceed for in-depth analysis. You can spot an invoice, a marketing " +
		"brochure, or a legal contract from a mile away, separating them from 10-K filings, " +
		"annual reports, or income statements.",
}

var extractionAgent = Agent{
	Role: "Financial Data Extractor",
	Goal: "Precisely extract key financial figures, tables, and management commentary from a financial document.",
	Backstory: "You are an extraction expert trained on millions of financial documents. " +
		"You can parse complex tables, identify key performance indicators, and pull out crucial " +
		"statements from the Management's Discussion and Analysis section. Your work is the " +
		"foundation upon which all subsequent analysis is built, so accuracy is paramount.",
}

var analysisAgent = Agent{
	Role: "Senior Financial Analyst",
	Goal: "Conduct a thorough analysis of the extracted financial data to identify trends, strengths, weaknesses, and key insights.",
	Backstory: "You are a seasoned financial analyst with 20 years of experience on Wall Street. " +
		"Your expertise lies in ratio analysis, trend identification, and contextualizing financial " +
		"data within the broader economic landscape. You provide clear, unbiased insights into the " +
		"company's performance, profitability, liquidity, and solvency.",
}

var reportingAgent = Agent{
	Role: "Financial Report Writer",
	Goal: "Synthesize the analysis into a clear, concise, and well-structured investment report in Markdown format.",
	Backstory: "You are a skilled communicator who can translate complex financial analysis into an " +
		"easily digestible report. You structure your reports with clear headings, bullet points, " +
		"and summaries. The final output is professional, catering to an audience of investors and " +
		"stakeholders who need to make informed decisions quickly.",
}

// Stages returns the pipeline definition in execution order.
func Stages() []Stage {
	return []Stage{
		{
			Name:  "triage",
			Agent: triageAgent,
			Description: "Analyze the uploaded document provided below.\n\n" +
				"Your task is to determine if this document is a financial report " +
				"(e.g., 10-K, 10-Q, Annual Report, Quarterly Earnings Report).\n\n" +
				"If it IS a financial report, confirm this and briefly state the type of report.\n" +
				"If it is NOT a financial report, clearly state that and identify what kind of " +
				"document it appears to be (e.g., marketing material, legal contract, etc.).\n\n" +
				"Your final output must be a simple confirmation or rejection.",
			ExpectedOutput: "A clear, one-sentence conclusion: either 'This document is a [type] financial report.' " +
				"or 'This document is not a financial report; it appears to be a [document type].'",
			Tools: []string{ToolReadDocument},
		},
		{
			Name:  "extraction",
			Agent: extractionAgent,
			Description: "Based on the confirmation from the triage specialist, read the financial document provided below.\n\n" +
				"Your task is to extract the following key information:\n" +
				"- Company Name\n" +
				"- Report Period (e.g., Q2 2025)\n" +
				"- Total Revenue\n" +
				"- Net Income (or Loss)\n" +
				"- Earnings Per Share (EPS)\n" +
				"- Key highlights from the management's discussion or summary section.\n\n" +
				"Present the extracted data in a clear, structured format.",
			ExpectedOutput: "A structured summary of the extracted financial data, including all the requested key points.",
			Tools:          []string{ToolReadDocument},
		},
		{
			Name:  "analysis",
			Agent: analysisAgent,
			Description: "Analyze the extracted financial data provided by the Data Extractor.\n\n" +
				"Perform a comprehensive analysis focusing on:\n" +
				"1. Profitability: Is the company making money? How are the margins (e.g., operating margin)?\n" +
				"2. Growth: Are revenues and profits growing or shrinking year-over-year (YoY)?\n" +
				"3. Key Trends: Identify any significant positive or negative trends mentioned in the report " +
				"(e.g., new product launches, market challenges).\n" +
				"4. Red Flags: Note any potential risks or concerns highlighted in the report " +
				"(e.g., rising debt, declining cash flow).\n\n" +
				"Use the web search results below, when present, to place the company in its current " +
				"market and economic context.\n\n" +
				"Provide a balanced view of the company's financial health.",
			ExpectedOutput: "A detailed analysis covering profitability, growth, key trends, and potential red flags, " +
				"presented as a series of bullet points for each category.",
			Tools: []string{ToolWebSearch},
		},
		{
			Name:  "reporting",
			Agent: reportingAgent,
			Description: "Compile all the information from the previous steps into a final, comprehensive report in Markdown format.\n\n" +
				"The report must have the following sections:\n" +
				"- ## Executive Summary: A brief, high-level overview of the company's performance for the period.\n" +
				"- ## Key Financial Metrics: A table or list of the core extracted data (Revenue, Net Income, EPS).\n" +
				"- ## Detailed Analysis: The full analysis of profitability, growth, and trends.\n" +
				"- ## Potential Risks: A summary of the identified red flags.\n" +
				"- ## Concluding Remarks: A final, neutral summary of the findings.\n\n" +
				"Ensure the report is well-organized, professional, and easy to read.",
			ExpectedOutput: "A complete financial report in Markdown format with all the specified sections.",
		},
	}
}
