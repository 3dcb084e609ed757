package orchestrator

import (
	"fmt"
	"strings"
)

const fence = "```"

func schemaPrompt(prompt string) string {
	return fmt.Sprintf(`Based on this app description: %q

Generate a TypeScript interface/type for the database schema. Include:
1. All necessary fields for the app
2. Proper TypeScript types
3. Optional fields marked as optional
4. Timestamps for created/updated dates

Return ONLY the TypeScript interfaces, no explanations.`, prompt)
}

func uiPrompt(prompt string) string {
	return fmt.Sprintf(`Based on this app description: %q

Generate a production-ready React page component. Return ONLY valid TypeScript/React code:

1. Use React hooks (useState, useEffect, useContext)
2. Use Tailwind CSS for styling
3. Include proper TypeScript types
4. Create a clean, modern UI with white background, black text, orange accents
5. Make it fully functional (not a mock)
6. Import from @/components for reusable components if needed
7. No placeholder text or comments

Return only the component code, starting with 'export default function' or 'function'.`, prompt)
}

func apiPrompt(prompt, schema string) string {
	return fmt.Sprintf(`Based on this app description: %q and database schema:
%s

Generate Next.js API route handlers. Return ONLY valid TypeScript code:

1. Create API routes for common operations (GET, POST, PUT, DELETE)
2. Include proper error handling and validation
3. Use standard HTTP status codes
4. Add CORS headers
5. Return JSON responses
6. No authentication needed (public APIs)

Return multiple routes as separate export functions.`, prompt, schema)
}

func fixPrompt(code string, issues []string) string {
	return fmt.Sprintf(`Fix the following issues in this code:

Issues found:
%s

Original code:
%s
%s
%s

Return the corrected code. Ensure:
1. No placeholder text or comments
2. All imports are valid
3. No broken references
4. Production-ready code`, strings.Join(issues, "\n"), fence, code, fence)
}
