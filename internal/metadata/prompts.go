package metadata

const (
	DefaultTitlePrompt = "Analyze the uploaded image and generate a clear, descriptive, and professional one-line title suitable for a microstock image. " +
		"The title should summarize the main subject, setting, key themes, and concepts, incorporating potential keywords for searches. " +
		"Ensure it captures all relevant aspects, including actions, objects, emotions, environment, and context. " +
		"Respond with the title only."

	DefaultKeywordPrompt = "Analyze the uploaded image and generate a comprehensive list of 45–50 relevant and specific keywords that encapsulate all aspects of the image, " +
		"such as actions, objects, emotions, environment, and context. The first five keywords must be the most relevant. " +
		"Ensure each keyword is a single word, separated by commas, and optimized for searchability and relevance."
)
