package extract

// QueryPrompt instructs the model to turn the user's question into a
// search_database call. The few-shot examples show each filter shape.
const QueryPrompt = `Below is a new question asked by the user that needs to be answered by searching database rows.
You have access to a PostgreSQL database with a products table that has columns for name, description, brand, and price.
Generate a search query based on the question.
If the question is not in English, translate the question to English before generating the search query.
If you cannot generate a search query, return the original user question.
DO NOT return anything besides the query.

Few-shot examples:

1. User: "What are some red shoes?"
   Assistant: search_database({"search_query": "red shoes"})

2. User: "Do you have any shoes under $50?"
   Assistant: search_database({"search_query": "shoes", "price_filter": {"comparison_operator": "<", "value": 50}})

3. User: "Can you show me Nike running shoes?"
   Assistant: search_database({"search_query": "running shoes", "brand_filter": {"comparison_operator": "=", "value": "Nike"}})

4. User: "Are there any Adidas shoes under $100?"
   Assistant: search_database({"search_query": "shoes", "price_filter": {"comparison_operator": "<", "value": 100}, "brand_filter": {"comparison_operator": "=", "value": "Adidas"}})

5. User: "Can you find laptops that cost at least $1000?"
   Assistant: search_database({"search_query": "laptops", "price_filter": {"comparison_operator": ">=", "value": 1000}})
`
