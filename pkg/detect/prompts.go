package detect

// classifySystemPrompt is the instruction frame for oracle classification.
// The oracle must answer with one strict-JSON object and nothing else; the
// adapter rejects anything that does not parse into the decision fields.
const classifySystemPrompt = `You are an AI scam detection assistant.

Decide whether the conversation indicates a scam.

Rules:
- Respond ONLY in valid JSON
- No markdown
- No extra text

JSON format:
{
  "is_scam": true or false,
  "scam_type": "payment" | "phishing" | "lottery" | "impersonation" | "other" | "none",
  "confidence": number between 0 and 1,
  "reason": "short explanation"
}`
